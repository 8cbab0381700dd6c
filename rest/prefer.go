package rest

import (
	"net/http"
	"strings"
)

// preferHandling is the "handling" token of a Prefer header: strict rejects
// unknown search parameters, lenient silently drops them.
type preferHandling string

const (
	handlingStrict  preferHandling = "strict"
	handlingLenient preferHandling = "lenient"
)

// preferReturn is the "return" token of a Prefer header: it shapes the
// response body of a create/update, with no effect on indexing.
type preferReturn string

const (
	returnMinimal        preferReturn = "minimal"
	returnRepresentation preferReturn = "representation"
	returnOutcome        preferReturn = "OperationOutcome"
)

// parsePrefer reads the tokens of a "Prefer: handling=strict, return=minimal"
// header, falling back to the server's configured defaults for whichever
// token is absent.
func parsePrefer(r *http.Request, defaultHandling preferHandling, defaultReturn preferReturn) (preferHandling, preferReturn) {
	handling, ret := defaultHandling, defaultReturn
	for _, raw := range r.Header.Values("Prefer") {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			name, value, ok := strings.Cut(part, "=")
			if !ok {
				continue
			}
			name = strings.TrimSpace(name)
			value = strings.Trim(strings.TrimSpace(value), `"`)
			switch name {
			case "handling":
				if value == string(handlingStrict) || value == string(handlingLenient) {
					handling = preferHandling(value)
				}
			case "return":
				switch value {
				case string(returnMinimal), string(returnRepresentation), string(returnOutcome):
					ret = preferReturn(value)
				}
			}
		}
	}
	return handling, ret
}
