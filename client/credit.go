package smb2

import (
	"context"
)

// account tracks the credits granted by the server. Each token in balance
// is one credit.
type account struct {
	balance chan struct{}
}

func openAccount(maxCreditBalance uint16) *account {
	return &account{
		balance: make(chan struct{}, maxCreditBalance),
	}
}

func (a *account) initRequest() uint16 {
	return uint16(cap(a.balance))
}

// loan takes up to creditCharge credits, blocking for at least one.
func (a *account) loan(creditCharge uint16, ctx context.Context) (uint16, bool, error) {
	select {
	case <-a.balance:
	case <-ctx.Done():
		return 0, false, &ContextError{Err: ctx.Err()}
	}

	for n := uint16(1); n < creditCharge; n++ {
		select {
		case <-a.balance:
		default:
			return n, false, nil
		}
	}

	return creditCharge, true, nil
}

// opening is the number of credits the client may still ask for.
func (a *account) opening() uint16 {
	return uint16(cap(a.balance) - len(a.balance))
}

func (a *account) charge(granted uint16) {
	for i := 0; i < int(granted); i++ {
		select {
		case a.balance <- struct{}{}:
		default:
			return
		}
	}
}
