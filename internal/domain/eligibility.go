package domain

// Score evaluates attrs against the program criteria in program order.
// Every failed mandatory criterion is reported so the applicant sees all
// pending items at once. The score is returned even when the case is not
// eligible, for manual review of appeals.
func Score(p Program, attrs Attributes) (score int, eligible bool, failedMandatory []string) {
	for _, c := range p.Criteria {
		ok := c.Predicate.Eval(attrs)
		if c.Mandatory {
			if !ok {
				failedMandatory = append(failedMandatory, c.Name)
			}
			continue
		}
		if ok {
			score += c.Weight
		}
	}

	// Validate rejects weight sums above MaxScore; the cap only guards
	// programs built without it.
	if p.MaxScore > 0 && score > p.MaxScore {
		score = p.MaxScore
	}
	return score, len(failedMandatory) == 0, failedMandatory
}
