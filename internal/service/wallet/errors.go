package wallet

import "errors"

var ErrInvalidAmount = errors.New("deposit amount must be positive")
