// Package authzen defines the AuthZEN authorization API wire types and the
// PDP contract implemented by this service.
//
// The types follow the OpenID AuthZEN Authorization API 1.0 drafts:
// access evaluation, batched access evaluations, and the subject, resource
// and action search endpoints. They carry no dependency on the policy engine;
// translation to Cedar happens in the resolve, engine and pdp packages.
//
// # Errors
//
// Every failure surfaced by the decision pipeline is an *Error carrying one of
// the Code* constants. Transports map it to a status code with HTTPStatus.
//
//	resp, err := p.Evaluation(ctx, req)
//	if err != nil {
//		status := http.StatusInternalServerError
//		var aerr *authzen.Error
//		if errors.As(err, &aerr) {
//			status = aerr.HTTPStatus()
//		}
//	}
package authzen
