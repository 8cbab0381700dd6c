package rest

import (
	"github.com/clinicalregistry/barnreg/apperr"
)

// operationOutcome builds a minimal FHIR OperationOutcome document with one
// issue, following the severity/code/diagnostics shape
// damedic-fhir-toolbox-go/rest/internal/outcome builds per release, adapted
// here to a schemaless JSON document since the registry has no generated
// resource model.
func operationOutcome(severity, code, diagnostics string) map[string]any {
	return map[string]any{
		"resourceType": "OperationOutcome",
		"issue": []any{
			map[string]any{
				"severity":    severity,
				"code":        code,
				"diagnostics": diagnostics,
			},
		},
	}
}

// errorOutcome maps a registry error to its HTTP status and OperationOutcome
// body, following the Kind -> status/issue-code mapping in apperr and
// original_source/src/errors.rs.
func errorOutcome(err error) (status int, body map[string]any) {
	ae, ok := apperr.As(err)
	if !ok {
		ae = apperr.Wrap(apperr.KindStorage, err, "unexpected error")
	}
	return ae.Kind.Status(), operationOutcome("error", ae.Kind.IssueCode(), ae.Error())
}
