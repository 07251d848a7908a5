//go:build !integration

package usecase

// SessionCount reports how many checkout sessions the controller still holds.
func SessionCount(uc SettlementUseCase) int {
	s := uc.(*settlementUC)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
