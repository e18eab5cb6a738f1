package mocks

//go:generate mockgen -destination=./mock_reporter.go -package=mocks github.com/rxtech-lab/pairs-ledger/internal/analytics Reporter
