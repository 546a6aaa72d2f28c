package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamKey returns the cache key for an exam definition including its answer key.
func (r *CacheKeyStruct) ExamKey(examID string) string {
	return fmt.Sprintf("exam:%s:definition", examID)
}

// SweepLockKey is the lock held by the instance currently sweeping sessions.
func (r *CacheKeyStruct) SweepLockKey() string {
	return "lock:session_sweep"
}

// SessionEventsChannel returns the Redis PubSub channel carrying a session's state changes.
func (r *CacheKeyStruct) SessionEventsChannel(sessionID string) string {
	return fmt.Sprintf("session:%s:events", sessionID)
}

var CacheKey = NewCacheKeyStruct()
