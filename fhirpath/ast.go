package fhirpath

// Node is an expression AST node. The variants mirror 4.A: Path, SubExpr,
// Binary, Unary, Function, ArrayIndex, Literal, EnvVariable, TypeCast, TypeIs.
type Node interface {
	nodeString() string
}

// Path is a bare identifier path segment, e.g. "name" or "$this".
type Path struct {
	Name string
}

func (p Path) nodeString() string { return p.Name }

// SubExpr is a dotted navigation "Lhs.Rhs", e.g. "name.family".
type SubExpr struct {
	Lhs Node
	Rhs Node
}

func (s SubExpr) nodeString() string { return s.Lhs.nodeString() + "." + s.Rhs.nodeString() }

// BinaryOp enumerates the infix operators, grouped by the binding powers
// listed in 4.A.
type BinaryOp string

const (
	OpImplies BinaryOp = "implies"
	OpXor     BinaryOp = "xor"
	OpOr      BinaryOp = "or"
	OpAnd     BinaryOp = "and"
	OpIn      BinaryOp = "in"
	OpContains BinaryOp = "contains"
	OpEq      BinaryOp = "="
	OpNeq     BinaryOp = "!="
	OpEquiv   BinaryOp = "~"
	OpNEquiv  BinaryOp = "!~"
	OpLt      BinaryOp = "<"
	OpLte     BinaryOp = "<="
	OpGt      BinaryOp = ">"
	OpGte     BinaryOp = ">="
	OpUnion   BinaryOp = "|"
	OpAdd     BinaryOp = "+"
	OpSub     BinaryOp = "-"
	OpMul     BinaryOp = "*"
	OpDiv     BinaryOp = "/"
	OpIntDiv  BinaryOp = "div"
	OpMod     BinaryOp = "mod"
	OpConcat  BinaryOp = "&"
)

// Binary is an infix-operator expression.
type Binary struct {
	Lhs Node
	Op  BinaryOp
	Rhs Node
}

func (b Binary) nodeString() string { return b.Lhs.nodeString() + string(b.Op) + b.Rhs.nodeString() }

// Function is a call such as where(...), exists(), empty(), union(),
// resolve_and_check(...).
type Function struct {
	Name string
	Args []Node
}

func (f Function) nodeString() string { return f.Name + "(...)" }

// ArrayIndex is a postfix subscript, e.g. "name[0]".
type ArrayIndex struct {
	Base  Node
	Index Node
}

func (a ArrayIndex) nodeString() string { return a.Base.nodeString() + "[...]" }

// LiteralKind distinguishes the literal payload carried by a Literal node.
type LiteralKind int

const (
	LitString LiteralKind = iota
	LitNumber
	LitBool
	LitDateTime
	LitQuantity
)

// Literal is a constant value embedded in the expression text.
type Literal struct {
	Kind  LiteralKind
	Text  string // raw text for String/Number/DateTime
	Bool  bool
	Unit  string // populated for LitQuantity
}

func (l Literal) nodeString() string { return l.Text }

// EnvVariable is a `%name` reference, resolved from the evaluation Context's
// environment variable table.
type EnvVariable struct {
	Name string
}

func (e EnvVariable) nodeString() string { return "%" + e.Name }

// TypeCast is the result of parsing `expr as TypeSpecifier`. Parent is the
// navigation context the bare/fused attribute names are looked up against;
// Bare and Fused are the two candidate field names (dual-name lookup for
// polymorphic `value[x]`-style attributes, 4.A).
type TypeCast struct {
	Parent Node
	Bare   string
	Fused  string
}

func (t TypeCast) nodeString() string { return t.Parent.nodeString() + "." + t.Bare + " as " }

// TypeIs is the result of parsing `expr is TypeName`: a boolean test of the
// evaluated type hint of expr's result, rather than a re-navigation.
type TypeIs struct {
	Expr     Node
	TypeName string
}

func (t TypeIs) nodeString() string { return t.Expr.nodeString() + " is " + t.TypeName }

// Unary is a signed numeric literal prefix, the only place 4.A allows unary
// +/- to appear.
type Unary struct {
	Op   BinaryOp
	Expr Node
}

func (u Unary) nodeString() string { return string(u.Op) + u.Expr.nodeString() }
