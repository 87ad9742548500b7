package usecase

import "sidekick/internal/domain"

const orphanQuestion = "(question unavailable)"

// PairHistory groups the log into question/answer exchanges by strict
// adjacency. A sidekick entry that does not directly follow a user entry is an
// orphan and gets a placeholder question. Notes are skipped.
func PairHistory(entries []domain.HistoryEntry) []domain.Exchange {
	var out []domain.Exchange
	for i := 0; i < len(entries); i++ {
		entry := entries[i]
		switch entry.Role {
		case domain.RoleUser:
			exchange := domain.Exchange{Question: entry}
			if i+1 < len(entries) && entries[i+1].Role == domain.RoleSidekick {
				answer := entries[i+1]
				exchange.Answer = &answer
				i++
			}
			out = append(out, exchange)
		case domain.RoleSidekick:
			answer := entry
			out = append(out, domain.Exchange{
				Question: domain.HistoryEntry{
					ID:        entry.ID + "-q",
					Timestamp: entry.Timestamp,
					Role:      domain.RoleUser,
					Content:   orphanQuestion,
				},
				Answer: &answer,
				Orphan: true,
			})
		}
	}
	return out
}

// MarkerTarget resolves where tapping a marker navigates: the linked entry
// when it still exists, otherwise the most recent entry.
func MarkerTarget(marker domain.NoteMarker, history []domain.HistoryEntry) (domain.HistoryEntry, bool) {
	if marker.Linked() {
		for _, entry := range history {
			if entry.ID == marker.HistoryID {
				return entry, true
			}
		}
	}
	if len(history) == 0 {
		return domain.HistoryEntry{}, false
	}
	return history[len(history)-1], true
}
