package update

import "hash/fnv"

// RolloutBucket places a device in one of 100 buckets for a release. The
// bucket is stable for a device and release, and independent across releases.
func RolloutBucket(clientID, version string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(clientID + ":" + version))
	return h.Sum32() % 100
}

// InRollout reports whether a device may receive a release staged at
// rollout percent. Devices without an id only receive full rollouts.
func InRollout(clientID, version string, rollout float64) bool {
	if rollout >= 100 {
		return true
	}
	if rollout <= 0 || clientID == "" {
		return false
	}
	return float64(RolloutBucket(clientID, version)) < rollout
}
