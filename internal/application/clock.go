package application

import "time"

// Clock dipakai service supaya timestamp pipeline bisa di-fix di test
type Clock interface {
	Now() time.Time
}

// SystemClock implementasi default, selalu UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
