package domain

// Snapshot keys inspected by the quality score. Callers may store anything
// else alongside them; only these contribute to the score.
const (
	SnapshotTenantContext = "tenant_context"
	SnapshotConversation  = "conversation_turns"
	SnapshotParticipants  = "participants"
	SnapshotTopics        = "topics"
)

// QualityWeights configures the weighted-completeness score of a session
// snapshot. Weights need not sum to 1; the score is normalized.
type QualityWeights struct {
	TenantContext float64
	Conversation  float64
	Participants  float64
	Topics        float64
}

// DefaultQualityWeights weighs all four snapshot components equally.
func DefaultQualityWeights() QualityWeights {
	return QualityWeights{TenantContext: 1, Conversation: 1, Participants: 1, Topics: 1}
}

// Score returns the completeness of snapshot in [0,1]: the normalized sum of
// weights whose component is present and non-empty.
func (w QualityWeights) Score(snapshot map[string]any) float64 {
	total := w.TenantContext + w.Conversation + w.Participants + w.Topics
	if total <= 0 {
		return 0
	}
	got := 0.0
	if hasValue(snapshot[SnapshotTenantContext]) {
		got += w.TenantContext
	}
	if hasValue(snapshot[SnapshotConversation]) {
		got += w.Conversation
	}
	if hasValue(snapshot[SnapshotParticipants]) {
		got += w.Participants
	}
	if hasValue(snapshot[SnapshotTopics]) {
		got += w.Topics
	}
	return got / total
}

// hasValue reports whether v is a present, non-empty snapshot component.
func hasValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
