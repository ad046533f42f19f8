package provider

import "ferrex/internal/errs"

// classifyProviderError maps a raw Searcher error to a provider-kind
// taxonomy error. A Searcher that already returns a *errs.Error
// (e.g. a concrete HTTP client classifying its own status codes) is
// passed through unchanged; anything else defaults to malformed,
// since an unrecognized Searcher failure is presumed permanent
// (bad query, bad payload) rather than a network blip.
//
// HTTP-status mapping for a concrete Searcher implementation: 429 and
// 5xx/network/timeout classify as ProviderRateLimited/NetworkTimeout
// (Transient); 4xx other than 429, and malformed response bodies,
// classify as ProviderNotFound/Malformed (Permanent). The concrete
// client applies this table before returning; classifyProviderError
// only covers the fallback case of an un-classified error reaching
// the wrapper.
func classifyProviderError(op string, err error) error {
	if te, ok := err.(*errs.Error); ok {
		return te
	}
	return errs.NewProvider(errs.ProviderMalformed, op, "provider call failed", err)
}
