package application

import (
	"context"
	"fmt"
	"slices"

	"github.com/ericfisherdev/passvault/internal/domain/model"
)

// AuditReport lists referential-integrity violations between the account
// table and the user index. A clean store has no Problems.
type AuditReport struct {
	Users    int
	Accounts int
	Counter  uint64
	Problems []string
}

// OK reports whether the audit found no problems.
func (r AuditReport) OK() bool {
	return len(r.Problems) == 0
}

// Audit walks both partitions and checks that every indexed id has a record
// owned by that user, no id is indexed twice, no record is unindexed, no set
// is empty, and no id exceeds the counter.
func (m *AccountManager) Audit(ctx context.Context) (AuditReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var report AuditReport
	counter, _, err := m.ids.Current(ctx)
	if err != nil {
		return report, err
	}
	report.Counter = counter

	owners := make(map[model.AccountID]model.UserID)
	for entry, err := range m.index.All(ctx) {
		if err != nil {
			return report, err
		}
		report.Users++
		if len(entry.IDs) == 0 {
			report.Problems = append(report.Problems, fmt.Sprintf("user %q has an empty index entry", entry.User))
		}
		for _, id := range entry.IDs {
			if other, dup := owners[id]; dup {
				report.Problems = append(report.Problems, fmt.Sprintf("account %d indexed under both %q and %q", id, other, entry.User))
				continue
			}
			owners[id] = entry.User
		}
	}

	seen := make(map[model.AccountID]bool, len(owners))
	for a, err := range m.table.All(ctx) {
		if err != nil {
			return report, err
		}
		report.Accounts++
		seen[a.ID] = true
		if uint64(a.ID) > counter {
			report.Problems = append(report.Problems, fmt.Sprintf("account %d is above the id counter %d", a.ID, counter))
		}
		owner, indexed := owners[a.ID]
		switch {
		case !indexed:
			report.Problems = append(report.Problems, fmt.Sprintf("account %d of %q is not indexed", a.ID, a.UserID))
		case owner != a.UserID:
			report.Problems = append(report.Problems, fmt.Sprintf("account %d belongs to %q but is indexed under %q", a.ID, a.UserID, owner))
		}
	}

	for id, user := range owners {
		if !seen[id] {
			report.Problems = append(report.Problems, fmt.Sprintf("user %q indexes missing account %d", user, id))
		}
	}
	slices.Sort(report.Problems)
	return report, nil
}
