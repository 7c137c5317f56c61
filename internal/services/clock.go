package services

import (
	"sync"
	"time"
)

// Clock abstracts time for the sync engine
type Clock interface {
	Now() time.Time
	// Every calls fn every d until stop is called. stop may be called from fn.
	Every(d time.Duration, fn func()) (stop func())
}

// SystemClock is the wall clock
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Every runs fn on a ticker goroutine
func (SystemClock) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	stopChan := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				select {
				case <-stopChan:
					return
				default:
				}
				fn()
			case <-stopChan:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(stopChan)
		})
	}
}
