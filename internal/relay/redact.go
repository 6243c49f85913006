package relay

import "slices"

// SensitiveParams are masked in every observability output.
var SensitiveParams = []string{"code", "access_token", "id_token"}

// Redact returns a copy of params with sensitive values replaced by MaskToken
func Redact(params *Params) *Params {
	out := NewParams()
	for _, k := range params.keys {
		v := params.values[k]
		if slices.Contains(SensitiveParams, k) {
			v = MaskToken
		}
		out.Set(k, v)
	}
	return out
}
