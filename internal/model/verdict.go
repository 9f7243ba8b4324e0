package model

// HasFlag returns true if the rule with the given id fired.
func (v Verdict) HasFlag(ruleID string) bool {
	for _, f := range v.Flags {
		if f.RuleID == ruleID {
			return true
		}
	}
	return false
}

// Messages returns the messages of all flags with the given severity,
// in evaluation order.
func (v Verdict) Messages(sev Severity) []string {
	var out []string
	for _, f := range v.Flags {
		if f.Severity == sev {
			out = append(out, f.Message)
		}
	}
	return out
}

// RuleIDs returns the ids of all triggered rules, in evaluation order.
func (v Verdict) RuleIDs() []string {
	ids := make([]string, len(v.Flags))
	for i, f := range v.Flags {
		ids[i] = f.RuleID
	}
	return ids
}

// Count returns the number of flags with the given severity.
func (v Verdict) Count(sev Severity) int {
	n := 0
	for _, f := range v.Flags {
		if f.Severity == sev {
			n++
		}
	}
	return n
}
