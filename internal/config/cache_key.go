package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// TwoFactorChallengeKey returns the cache key for a pending 2FA challenge
func (r *CacheKeyStruct) TwoFactorChallengeKey(token string) string {
	return fmt.Sprintf("2fa:challenge:%s", token)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam's
// live audit stream
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
