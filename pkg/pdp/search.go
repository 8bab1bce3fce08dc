package pdp

import (
	"context"
	"encoding/base64"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/authzen"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/pip"
)

// encodePageToken returns the opaque token for a candidate offset.
func encodePageToken(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodePageToken(page *authzen.Page) (int, error) {
	if page == nil {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(page.NextToken)
	if err != nil {
		return 0, authzen.ErrValidation("page.next_token is invalid")
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, authzen.ErrValidation("page.next_token is invalid")
	}
	return offset, nil
}

// paginate slices candidates by the request page and returns the page plus
// the continuation, nil on the last page.
func paginate[T any](candidates []T, page *authzen.Page, size int) ([]T, *authzen.Page, error) {
	offset, err := decodePageToken(page)
	if err != nil {
		return nil, nil, err
	}
	if offset >= len(candidates) {
		return nil, nil, nil
	}
	end := min(offset+size, len(candidates))
	var next *authzen.Page
	if end < len(candidates) {
		next = &authzen.Page{NextToken: encodePageToken(end)}
	}
	return candidates[offset:end], next, nil
}

// filterAllowed evaluates every request concurrently and reports which were
// allowed, in input order. The first failure aborts the search.
func (p *PDP) filterAllowed(ctx context.Context, op string, reqs []*authzen.EvaluationRequest) ([]bool, error) {
	allowed := make([]bool, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := p.evaluate(gctx, op, req)
			if err != nil {
				return err
			}
			allowed[i] = resp.Decision
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return allowed, nil
}

func (p *PDP) scanner(op string) (pip.Scanner, error) {
	s, ok := p.resolver.Provider().(pip.Scanner)
	if !ok {
		return nil, authzen.ErrUnsupportedOperation(op)
	}
	return s, nil
}

func (p *PDP) scanIDs(ctx context.Context, op, entityType string) ([]string, error) {
	s, err := p.scanner(op)
	if err != nil {
		return nil, err
	}
	ids, err := s.ScanEntities(ctx, entityType)
	if err != nil {
		return nil, authzen.ErrEntityResolution(err)
	}
	return ids, nil
}

// SubjectSearch returns the subjects of the requested type allowed to perform
// the action on the resource.
func (p *PDP) SubjectSearch(ctx context.Context, req *authzen.SubjectSearchRequest) (*authzen.SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, _ = EnsureRequestID(ctx)

	ids, err := p.scanIDs(ctx, "subject search", req.Subject.Type)
	if err != nil {
		return nil, err
	}
	candidates, next, err := paginate(ids, req.Page, p.pageSize)
	if err != nil {
		return nil, err
	}

	reqs := make([]*authzen.EvaluationRequest, len(candidates))
	for i, id := range candidates {
		reqs[i] = &authzen.EvaluationRequest{
			Subject:  authzen.Entity{Type: req.Subject.Type, ID: id},
			Resource: req.Resource,
			Action:   req.Action,
			Context:  req.Context,
		}
	}
	allowed, err := p.filterAllowed(ctx, OpSubjectSearch, reqs)
	if err != nil {
		return nil, err
	}

	resp := &authzen.SearchResponse{Page: next, Results: []authzen.Entity{}}
	for i, ok := range allowed {
		if ok {
			resp.Results = append(resp.Results, authzen.Entity{Type: req.Subject.Type, ID: candidates[i]})
		}
	}
	return resp, nil
}

// ResourceSearch returns the resources of the requested type the subject may
// perform the action on.
func (p *PDP) ResourceSearch(ctx context.Context, req *authzen.ResourceSearchRequest) (*authzen.SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, _ = EnsureRequestID(ctx)

	ids, err := p.scanIDs(ctx, "resource search", req.Resource.Type)
	if err != nil {
		return nil, err
	}
	candidates, next, err := paginate(ids, req.Page, p.pageSize)
	if err != nil {
		return nil, err
	}

	reqs := make([]*authzen.EvaluationRequest, len(candidates))
	for i, id := range candidates {
		reqs[i] = &authzen.EvaluationRequest{
			Subject:  req.Subject,
			Resource: authzen.Entity{Type: req.Resource.Type, ID: id},
			Action:   req.Action,
			Context:  req.Context,
		}
	}
	allowed, err := p.filterAllowed(ctx, OpResourceSearch, reqs)
	if err != nil {
		return nil, err
	}

	resp := &authzen.SearchResponse{Page: next, Results: []authzen.Entity{}}
	for i, ok := range allowed {
		if ok {
			resp.Results = append(resp.Results, authzen.Entity{Type: req.Resource.Type, ID: candidates[i]})
		}
	}
	return resp, nil
}

// ActionSearch returns the schema actions the subject may perform on the
// resource.
func (p *PDP) ActionSearch(ctx context.Context, req *authzen.ActionSearchRequest) (*authzen.ActionSearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, _ = EnsureRequestID(ctx)

	finder, ok := p.resolver.Provider().(pip.ActionFinder)
	if !ok {
		return nil, authzen.ErrUnsupportedOperation("action search")
	}
	names, err := finder.FindApplicableActions(ctx, req.Subject.Type, req.Resource.Type)
	if err != nil {
		return nil, authzen.ErrEntityResolution(err)
	}
	candidates, next, err := paginate(names, req.Page, p.pageSize)
	if err != nil {
		return nil, err
	}

	reqs := make([]*authzen.EvaluationRequest, len(candidates))
	for i, name := range candidates {
		reqs[i] = &authzen.EvaluationRequest{
			Subject:  req.Subject,
			Resource: req.Resource,
			Action:   authzen.Action{Name: name},
			Context:  req.Context,
		}
	}
	allowed, err := p.filterAllowed(ctx, OpActionSearch, reqs)
	if err != nil {
		return nil, err
	}

	resp := &authzen.ActionSearchResponse{Page: next, Results: []authzen.ActionResult{}}
	for i, ok := range allowed {
		if ok {
			resp.Results = append(resp.Results, authzen.ActionResult{Name: candidates[i]})
		}
	}
	return resp, nil
}
