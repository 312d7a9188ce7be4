package compiler

import (
	"encoding/json"
	"fmt"

	"github.com/wrightlabs/gamewright/internal/artifact"
	"github.com/wrightlabs/gamewright/internal/cond"
	"github.com/wrightlabs/gamewright/internal/mutate"
	"github.com/wrightlabs/gamewright/internal/state"
)

func decodeJSON(raw []byte, into any) *ValidationError {
	if err := json.Unmarshal(raw, into); err != nil {
		return &ValidationError{
			Code: ErrDecodeFailure, Kind: KindSchemaViolation,
			Field: "payload", Message: err.Error(),
		}
	}
	return nil
}

func validateStateSchema(s artifact.StateSchema) []ValidationError {
	var errs []ValidationError

	for scope, fields := range map[string]map[string]artifact.FieldType{
		"shared":      s.Shared,
		"participant": s.Participant,
	} {
		for name, ft := range fields {
			if !ft.Valid() {
				errs = append(errs, ValidationError{
					Code: ErrInvalidFieldType, Kind: KindSchemaViolation,
					Field:   fmt.Sprintf("%s.%s", scope, name),
					Message: fmt.Sprintf("invalid field type %q", ft),
				})
			}
		}
	}

	return errs
}

func validateTransitionGraph(g artifact.TransitionGraph) []ValidationError {
	var errs []ValidationError

	phases := make(map[string]bool, len(g.Phases))
	for i, p := range g.Phases {
		if phases[p] {
			errs = append(errs, ValidationError{
				Code: ErrDuplicatePhase, Kind: KindSchemaViolation,
				Field:   fmt.Sprintf("phases[%d]", i),
				Message: fmt.Sprintf("duplicate phase %q", p),
			})
		}
		phases[p] = true
	}

	if !phases[g.Initial] {
		errs = append(errs, ValidationError{
			Code: ErrUnknownInitialPhase, Kind: KindSchemaViolation,
			Field:   "initial",
			Message: fmt.Sprintf("initial phase %q is not declared", g.Initial),
		})
	}

	ruleIDs := make(map[string]bool, len(g.Rules))
	for i, rule := range g.Rules {
		field := fmt.Sprintf("rules[%d]", i)

		if ruleIDs[rule.ID] {
			errs = append(errs, ValidationError{
				Code: ErrDuplicateRuleID, Kind: KindSchemaViolation,
				Field:   field + ".id",
				Message: fmt.Sprintf("duplicate rule id %q", rule.ID),
			})
		}
		ruleIDs[rule.ID] = true

		for side, phase := range map[string]string{"fromPhase": rule.FromPhase, "toPhase": rule.ToPhase} {
			if !phases[phase] {
				errs = append(errs, ValidationError{
					Code: ErrUnknownPhase, Kind: KindSchemaViolation,
					Field:   field + "." + side,
					Message: fmt.Sprintf("phase %q is not declared", phase),
				})
			}
		}

		if rule.FromPhase == rule.ToPhase {
			errs = append(errs, ValidationError{
				Code: ErrSelfLoop, Kind: KindSchemaViolation,
				Field:   field,
				Message: fmt.Sprintf("rule %q transitions %q to itself", rule.ID, rule.FromPhase),
			})
		}

		for j, pre := range rule.Preconditions {
			errs = append(errs, conditionErrors(pre, fmt.Sprintf("%s.preconditions[%d]", field, j))...)
		}
	}

	return errs
}

// conditionErrors maps structural condition issues into the validation
// taxonomy.
func conditionErrors(n *cond.Node, field string) []ValidationError {
	var errs []ValidationError
	for _, issue := range cond.Check(n) {
		switch issue.Kind {
		case cond.IssueForbiddenReference:
			errs = append(errs, ValidationError{
				Code: ErrForbiddenReference, Kind: KindForbiddenReference,
				Field:   field + issue.Where[1:], // strip the "$" tree anchor
				Message: issue.Message,
			})
		default:
			errs = append(errs, ValidationError{
				Code: ErrMalformedCondition, Kind: KindEvaluationError,
				Field:   field + issue.Where[1:],
				Message: issue.Message,
			})
		}
	}
	return errs
}

func validateTemplates(l artifact.TemplateLibrary, schema *artifact.StateSchema) []ValidationError {
	var errs []ValidationError

	ids := make(map[string]bool, len(l.Templates))
	events := make(map[string]bool, len(l.Templates))

	for i, tmpl := range l.Templates {
		field := fmt.Sprintf("templates[%d]", i)

		if ids[tmpl.ID] {
			errs = append(errs, ValidationError{
				Code: ErrDuplicateTemplateID, Kind: KindSchemaViolation,
				Field:   field + ".id",
				Message: fmt.Sprintf("duplicate template id %q", tmpl.ID),
			})
		}
		ids[tmpl.ID] = true

		if events[tmpl.Event] {
			errs = append(errs, ValidationError{
				Code: ErrDuplicateTemplateEvent, Kind: KindSchemaViolation,
				Field:   field + ".event",
				Message: fmt.Sprintf("event %q is bound to more than one template", tmpl.Event),
			})
		}
		events[tmpl.Event] = true

		for j, op := range tmpl.Ops {
			opField := fmt.Sprintf("%s.ops[%d]", field, j)
			if tr, ok := op.(mutate.Transfer); ok && tr.From.String() == tr.To.String() {
				errs = append(errs, ValidationError{
					Code: ErrSelfTransfer, Kind: KindSchemaViolation,
					Field:   opField,
					Message: fmt.Sprintf("transfer %q moves value onto its own source", tr.From),
				})
			}
			if schema != nil {
				errs = append(errs, opConformance(op, *schema, opField)...)
			}
		}
	}

	return errs
}

// opConformance checks an op's target fields and written values against
// the committed state schema.
func opConformance(op mutate.Op, schema artifact.StateSchema, field string) []ValidationError {
	var errs []ValidationError

	check := func(p state.Path, written state.Value) {
		declared, ok := declaredType(p, schema)
		if !ok {
			errs = append(errs, ValidationError{
				Code: ErrUndeclaredField, Kind: KindSchemaViolation,
				Field:   field,
				Message: fmt.Sprintf("path %q targets a field the schema does not declare", p),
			})
			return
		}
		if written == nil {
			return
		}
		if declared == artifact.TypeInt {
			if _, isFloat := written.(state.Float); isFloat {
				errs = append(errs, ValidationError{
					Code: ErrNonIntegralMechanical, Kind: KindTypeMismatch,
					Field:   field,
					Message: fmt.Sprintf("non-integral value written to int field %q", p),
				})
			}
		}
	}

	switch o := op.(type) {
	case mutate.Set:
		check(o.Path, o.Value)
	case mutate.Increment:
		check(o.Path, o.Amount)
	case mutate.Append:
		check(o.Path, nil)
	case mutate.Delete:
		check(o.Path, nil)
	case mutate.Transfer:
		check(o.From, o.Amount)
		check(o.To, o.Amount)
	case mutate.Merge:
		check(o.Path, nil)
	case mutate.RandomChoice:
		check(o.Path, nil)
		if t, ok := declaredType(o.Path, schema); ok && t == artifact.TypeInt {
			for _, c := range o.Choices {
				if _, isFloat := c.Value.(state.Float); isFloat {
					errs = append(errs, ValidationError{
						Code: ErrNonIntegralMechanical, Kind: KindTypeMismatch,
						Field:   field,
						Message: fmt.Sprintf("non-integral choice written to int field %q", o.Path),
					})
				}
			}
		}
	case mutate.SetAll:
		t, ok := schema.ParticipantField(firstSeg(o.Field))
		if !ok {
			errs = append(errs, ValidationError{
				Code: ErrUndeclaredField, Kind: KindSchemaViolation,
				Field:   field,
				Message: fmt.Sprintf("field %q is not declared for participants", o.Field),
			})
		} else if t == artifact.TypeInt {
			if _, isFloat := o.Value.(state.Float); isFloat {
				errs = append(errs, ValidationError{
					Code: ErrNonIntegralMechanical, Kind: KindTypeMismatch,
					Field:   field,
					Message: fmt.Sprintf("non-integral value written to int field %q", o.Field),
				})
			}
		}
	}

	return errs
}

func declaredType(p state.Path, schema artifact.StateSchema) (artifact.FieldType, bool) {
	switch p.Root() {
	case state.RootShared:
		return schema.SharedField(p.FirstField())
	case state.RootParticipants:
		return schema.ParticipantField(p.FirstField())
	default:
		return "", false
	}
}

func firstSeg(field string) string {
	for i := 0; i < len(field); i++ {
		if field[i] == '.' {
			return field[:i]
		}
	}
	return field
}
