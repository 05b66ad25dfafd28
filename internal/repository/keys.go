package repository

import (
	"fmt"
	"strconv"

	"detective_game/internal/domain"
)

const keyPrefix = "detective:"

const (
	keyCycle       = keyPrefix + "cycle"
	keyPlayers     = keyPrefix + "players"
	keyBots        = keyPrefix + "bots"
	keySessions    = keyPrefix + "sessions"
	keyMatchIDs    = keyPrefix + "match_ids"
	keyLeaderboard = keyPrefix + "leaderboard"
)

// StateVersionKey holds the shared state version.
const StateVersionKey = keyPrefix + "state_version"

func matchKey(id string) string {
	return keyPrefix + "match:" + id
}

func inboundKey(fid int64) string {
	return keyPrefix + "inbound:" + strconv.FormatInt(fid, 10)
}

func fidField(fid int64) string {
	return strconv.FormatInt(fid, 10)
}

// InstanceKey holds the last version observed by one process instance.
func InstanceKey(instanceID string) string {
	return keyPrefix + "instance:" + instanceID
}

// MatchLockKey guards read-modify-write of one match.
func MatchLockKey(matchID string) string {
	return keyPrefix + "lock:match:" + matchID
}

// CycleLockKey serializes opening a new cycle.
const CycleLockKey = keyPrefix + "lock:cycle"

// ClaimKey marks a claimed state version whose cycle write is in flight.
func ClaimKey(version int64) string {
	return keyPrefix + "claim:" + strconv.FormatInt(version, 10)
}

// PlayerLockKey serializes updates to one player's record and session.
func PlayerLockKey(fid int64) string {
	return keyPrefix + "lock:player:" + fidField(fid)
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
