package authzen

import "fmt"

// Validate checks that the entity carries a type and an id.
func (e *Entity) Validate(field string) error {
	if e.Type == "" {
		return ErrValidation("%s.type is required", field)
	}
	if e.ID == "" {
		return ErrValidation("%s.id is required", field)
	}
	return nil
}

// Validate checks that the action carries a name.
func (a *Action) Validate(field string) error {
	if a.Name == "" {
		return ErrValidation("%s.name is required", field)
	}
	return nil
}

// Validate checks the request shape.
func (r *EvaluationRequest) Validate() error {
	if err := r.Subject.Validate("subject"); err != nil {
		return err
	}
	if err := r.Resource.Validate("resource"); err != nil {
		return err
	}
	return r.Action.Validate("action")
}

// Validate checks the request shape. Items may omit any field; defaults are
// applied at evaluation time.
func (r *EvaluationsRequest) Validate() error {
	if r.Evaluations == nil {
		return ErrValidation("evaluations is required")
	}
	if r.Subject != nil {
		if err := r.Subject.Validate("subject"); err != nil {
			return err
		}
	}
	if r.Resource != nil {
		if err := r.Resource.Validate("resource"); err != nil {
			return err
		}
	}
	if r.Action != nil {
		if err := r.Action.Validate("action"); err != nil {
			return err
		}
	}
	for i, item := range r.Evaluations {
		if item.Subject != nil {
			if err := item.Subject.Validate(itemField(i, "subject")); err != nil {
				return err
			}
		}
		if item.Resource != nil {
			if err := item.Resource.Validate(itemField(i, "resource")); err != nil {
				return err
			}
		}
		if item.Action != nil {
			if err := item.Action.Validate(itemField(i, "action")); err != nil {
				return err
			}
		}
	}
	if r.Options != nil && !r.Options.EvaluationSemantics.Valid() {
		return ErrValidation("options.evaluation_semantics %q is not supported", r.Options.EvaluationSemantics)
	}
	return nil
}

func itemField(i int, name string) string {
	return fmt.Sprintf("evaluations[%d].%s", i, name)
}

// Validate checks the request shape.
func (r *SubjectSearchRequest) Validate() error {
	if r.Subject.Type == "" {
		return ErrValidation("subject.type is required")
	}
	if err := r.Resource.Validate("resource"); err != nil {
		return err
	}
	if err := r.Action.Validate("action"); err != nil {
		return err
	}
	return validatePage(r.Page)
}

// Validate checks the request shape.
func (r *ResourceSearchRequest) Validate() error {
	if err := r.Subject.Validate("subject"); err != nil {
		return err
	}
	if r.Resource.Type == "" {
		return ErrValidation("resource.type is required")
	}
	if err := r.Action.Validate("action"); err != nil {
		return err
	}
	return validatePage(r.Page)
}

// Validate checks the request shape.
func (r *ActionSearchRequest) Validate() error {
	if err := r.Subject.Validate("subject"); err != nil {
		return err
	}
	if err := r.Resource.Validate("resource"); err != nil {
		return err
	}
	return validatePage(r.Page)
}

func validatePage(p *Page) error {
	if p != nil && p.NextToken == "" {
		return ErrValidation("page.next_token must not be empty")
	}
	return nil
}
