package systems

// clamp01 clamps a float32 value to the [0, 1] range.
func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// smoothstep is the default easing curve for arrival damping.
func smoothstep(t float32) float32 {
	t = clamp01(t)
	return t * t * (3 - 2*t)
}

// splitmix64 advances and mixes a 64-bit state. Used to derive per-agent,
// per-tick jitter that is independent of worker scheduling.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// hashUnit maps a 64-bit hash lane to a float in [-1, 1).
func hashUnit(h uint64) float32 {
	return float32(h>>40)/float32(1<<23)*2 - 1
}

// jitterVec derives a deterministic jitter triple in [-1,1)^3 from the
// simulation seed, an agent id, and the tick counter.
func jitterVec(seed, id, tick uint64) (float32, float32, float32) {
	h := splitmix64(seed ^ splitmix64(id) ^ splitmix64(tick))
	x := hashUnit(h)
	h = splitmix64(h)
	y := hashUnit(h)
	h = splitmix64(h)
	z := hashUnit(h)
	return x, y, z
}
