package signal

// Kalman is a scalar random-walk filter. The first measurement seeds the
// estimate; later ones are blended by the gain derived from Q and R.
type Kalman struct {
	q, r   float64
	x, p   float64
	seeded bool
}

// NewKalman returns a filter with process noise q and measurement noise r.
func NewKalman(q, r float64) *Kalman {
	return &Kalman{q: q, r: r, p: 1.0}
}

// Update feeds one measurement and returns the new estimate.
func (k *Kalman) Update(m float64) float64 {
	if !k.seeded {
		k.x = m
		k.seeded = true
		return k.x
	}
	k.p += k.q
	gain := k.p / (k.p + k.r)
	k.x += gain * (m - k.x)
	k.p = (1 - gain) * k.p
	return k.x
}

// Estimate returns the current filtered value, zero before seeding.
func (k *Kalman) Estimate() float64 { return k.x }

// Seeded reports whether a measurement has been seen.
func (k *Kalman) Seeded() bool { return k.seeded }
