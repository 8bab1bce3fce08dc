package authzen

import "context"

// EvaluationSemantics selects the short-circuit policy of a batched evaluation.
type EvaluationSemantics string

const (
	ExecuteAll          EvaluationSemantics = "execute_all"
	DenyOnFirstDeny     EvaluationSemantics = "deny_on_first_deny"
	PermitOnFirstPermit EvaluationSemantics = "permit_on_first_permit"
)

// Valid reports whether s is empty (defaults to ExecuteAll) or a known value.
func (s EvaluationSemantics) Valid() bool {
	switch s {
	case "", ExecuteAll, DenyOnFirstDeny, PermitOnFirstPermit:
		return true
	}
	return false
}

// Entity is a subject or resource. A non-nil Properties map means the caller
// supplied the attributes inline and no lookup is performed for it.
type Entity struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Action identifies the operation being authorized.
type Action struct {
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

// EvaluationRequest is a single access evaluation.
type EvaluationRequest struct {
	Subject  Entity         `json:"subject"`
	Resource Entity         `json:"resource"`
	Action   Action         `json:"action"`
	Context  map[string]any `json:"context,omitempty"`
}

// EvaluationItem is one entry of a batch. Absent fields fall back to the
// batch-level defaults.
type EvaluationItem struct {
	Subject  *Entity `json:"subject,omitempty"`
	Resource *Entity `json:"resource,omitempty"`
	Action   *Action `json:"action,omitempty"`
}

// EvaluationOptions carries batch options. Unknown option keys are accepted
// and ignored.
type EvaluationOptions struct {
	EvaluationSemantics EvaluationSemantics `json:"evaluation_semantics,omitempty"`
}

// EvaluationsRequest is a batched access evaluation.
type EvaluationsRequest struct {
	Subject     *Entity            `json:"subject,omitempty"`
	Resource    *Entity            `json:"resource,omitempty"`
	Action      *Action            `json:"action,omitempty"`
	Context     map[string]any     `json:"context,omitempty"`
	Evaluations []EvaluationItem   `json:"evaluations"`
	Options     *EvaluationOptions `json:"options,omitempty"`
}

// Semantics returns the configured evaluation semantics, ExecuteAll if unset.
func (r *EvaluationsRequest) Semantics() EvaluationSemantics {
	if r.Options == nil || r.Options.EvaluationSemantics == "" {
		return ExecuteAll
	}
	return r.Options.EvaluationSemantics
}

// SubjectFor returns the subject of item i: the item's own value, else the
// batch default, else an empty placeholder entity.
func (r *EvaluationsRequest) SubjectFor(i int) Entity {
	if s := r.Evaluations[i].Subject; s != nil {
		return *s
	}
	if r.Subject != nil {
		return *r.Subject
	}
	return Entity{}
}

// ResourceFor returns the resource of item i with the same fallback as SubjectFor.
func (r *EvaluationsRequest) ResourceFor(i int) Entity {
	if res := r.Evaluations[i].Resource; res != nil {
		return *res
	}
	if r.Resource != nil {
		return *r.Resource
	}
	return Entity{}
}

// ActionFor returns the action of item i with the same fallback as SubjectFor.
func (r *EvaluationsRequest) ActionFor(i int) Action {
	if a := r.Evaluations[i].Action; a != nil {
		return *a
	}
	if r.Action != nil {
		return *r.Action
	}
	return Action{}
}

// ReasonContext is the decision context returned alongside a decision.
// ReasonAdmin maps a stringified index to a policy identifier.
type ReasonContext struct {
	ID          string            `json:"id,omitempty"`
	ReasonAdmin map[string]string `json:"reason_admin,omitempty"`
	ReasonUser  map[string]string `json:"reason_user,omitempty"`
}

// EvaluationResponse is a single decision.
type EvaluationResponse struct {
	Decision bool           `json:"decision"`
	Context  *ReasonContext `json:"context,omitempty"`
}

// EvaluationsResponse holds the decisions of a batch in request order.
// It may be shorter than the request when a short-circuit semantics applied.
type EvaluationsResponse struct {
	Evaluations []EvaluationResponse `json:"evaluations"`
}

// SearchEntity is an entity reference whose id may be omitted.
type SearchEntity struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// Page carries an opaque continuation token.
type Page struct {
	NextToken string `json:"next_token"`
}

// SubjectSearchRequest asks which subjects of Subject.Type may perform
// Action on Resource.
type SubjectSearchRequest struct {
	Subject  SearchEntity   `json:"subject"`
	Resource Entity         `json:"resource"`
	Action   Action         `json:"action"`
	Context  map[string]any `json:"context,omitempty"`
	Page     *Page          `json:"page,omitempty"`
}

// ResourceSearchRequest asks which resources of Resource.Type Subject may
// perform Action on.
type ResourceSearchRequest struct {
	Subject  Entity         `json:"subject"`
	Resource SearchEntity   `json:"resource"`
	Action   Action         `json:"action"`
	Context  map[string]any `json:"context,omitempty"`
	Page     *Page          `json:"page,omitempty"`
}

// ActionSearchRequest asks which actions Subject may perform on Resource.
type ActionSearchRequest struct {
	Subject  Entity         `json:"subject"`
	Resource Entity         `json:"resource"`
	Context  map[string]any `json:"context,omitempty"`
	Page     *Page          `json:"page,omitempty"`
}

// SearchResponse lists matching entities. Page is emitted first.
type SearchResponse struct {
	Page    *Page    `json:"page,omitempty"`
	Results []Entity `json:"results"`
}

// ActionResult names one permitted action.
type ActionResult struct {
	Name string `json:"name"`
}

// ActionSearchResponse lists permitted actions. Page is emitted first.
type ActionSearchResponse struct {
	Page    *Page          `json:"page,omitempty"`
	Results []ActionResult `json:"results"`
}

// Configuration is the PDP metadata document served at
// /.well-known/authzen-configuration.
type Configuration struct {
	PolicyDecisionPoint       string `json:"policy_decision_point"`
	AccessEvaluationEndpoint  string `json:"access_evaluation_endpoint"`
	AccessEvaluationsEndpoint string `json:"access_evaluations_endpoint"`
	SearchSubjectEndpoint     string `json:"search_subject_endpoint"`
	SearchResourceEndpoint    string `json:"search_resource_endpoint"`
	SearchActionEndpoint      string `json:"search_action_endpoint"`
}

// Endpoint paths.
const (
	PathEvaluation     = "/access/v1/evaluation"
	PathEvaluations    = "/access/v1/evaluations"
	PathSearchSubject  = "/access/v1/search/subject"
	PathSearchResource = "/access/v1/search/resource"
	PathSearchAction   = "/access/v1/search/action"
	PathConfiguration  = "/.well-known/authzen-configuration"
)

// NewConfiguration returns the metadata document rooted at baseURL
// (scheme://host, no trailing slash).
func NewConfiguration(baseURL string) Configuration {
	return Configuration{
		PolicyDecisionPoint:       baseURL,
		AccessEvaluationEndpoint:  baseURL + PathEvaluation,
		AccessEvaluationsEndpoint: baseURL + PathEvaluations,
		SearchSubjectEndpoint:     baseURL + PathSearchSubject,
		SearchResourceEndpoint:    baseURL + PathSearchResource,
		SearchActionEndpoint:      baseURL + PathSearchAction,
	}
}

// PDP is the AuthZEN policy decision point.
type PDP interface {
	Evaluation(ctx context.Context, req *EvaluationRequest) (*EvaluationResponse, error)
	Evaluations(ctx context.Context, req *EvaluationsRequest) (*EvaluationsResponse, error)
	SubjectSearch(ctx context.Context, req *SubjectSearchRequest) (*SearchResponse, error)
	ResourceSearch(ctx context.Context, req *ResourceSearchRequest) (*SearchResponse, error)
	ActionSearch(ctx context.Context, req *ActionSearchRequest) (*ActionSearchResponse, error)
}
