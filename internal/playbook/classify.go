package playbook

// VerdictTrue is the one verdict value that routes an update into the trust
// memory. The verifier emits "True", "False", or "Unverifiable"; anything
// that is not the literal affirmative is treated as non-affirmative.
const VerdictTrue = "True"

// Classify maps a case verdict onto the partition its update belongs to.
// Affirmative verdicts feed the trust memory (rules that help recognize true
// information); everything else feeds the detection memory. no_action deltas
// always land in detection — they carry no rule, only a case count.
func Classify(verdict string, action Action) MemoryType {
	if action == ActionNone {
		return MemoryDetection
	}
	if verdict == VerdictTrue {
		return MemoryTrust
	}
	return MemoryDetection
}
