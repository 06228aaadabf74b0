// Package hll provides a HyperLogLog cardinality estimator with a
// monotonic merge, suitable for iterative fixed-point computations.
//
// HyperLogLog estimates the number of distinct elements in a multiset with
// approximately 2% standard error using only 2^p bytes of memory (e.g., 1 KB
// for precision 10). Registers only ever grow: Add and Merge take pointwise
// maxima, so repeated merging converges to a stable register state that can
// be detected with exact equality.
//
// The estimator applies the classic three-region bias correction: linear
// counting in the small range, the raw estimate in the mid range, and a
// hash-saturation correction in the large range.
package hll

import (
	"errors"
	"hash/fnv"
	"math"
	"math/bits"
	"sync"
)

const (
	// minPrecision is the minimum allowed precision (2^4 = 16 registers).
	minPrecision = 4

	// maxPrecision is the maximum allowed precision (2^16 = 65536 registers).
	maxPrecision = 16

	// hashBits is the total number of bits in the hash output.
	hashBits = 64

	// precisionP5 is precision 5 for alpha constant lookup.
	precisionP5 = 5

	// precisionP6 is precision 6 for alpha constant lookup.
	precisionP6 = 6

	// alphaP4 is the alpha constant for 2^4 = 16 registers.
	alphaP4 = 0.673

	// alphaP5 is the alpha constant for 2^5 = 32 registers.
	alphaP5 = 0.987

	// alphaP6 is the alpha constant for 2^6 = 64 registers.
	alphaP6 = 0.709

	// alphaGenericNumerator is the numerator in the generic alpha formula.
	alphaGenericNumerator = 0.7213

	// alphaGenericDenominatorCoeff is the coefficient in the generic alpha denominator.
	alphaGenericDenominatorCoeff = 1.079

	// smallRangeFactor bounds the small-range region: E <= 2.5 * m.
	smallRangeFactor = 2.5

	// largeRangeDivisor bounds the mid-range region: E <= 2^32 / 30.
	largeRangeDivisor = 30

	// twoPow32 is 2^32, the collision-saturation scale of a 32-bit hash space.
	twoPow32 = float64(1 << 32)

	// mix64 constants from splitmix64 finalizer by Vigna (2014).
	mixShift1 = 30
	mixMul1   = 0xbf58476d1ce4e5b9
	mixShift2 = 27
	mixMul2   = 0x94d049bb133111eb
	mixShift3 = 31
)

var (
	// ErrPrecisionOutOfRange is returned when precision is not in [4, 16].
	ErrPrecisionOutOfRange = errors.New("hll: precision must be in [4, 16]")

	// ErrPrecisionMismatch is returned when combining sketches with different precisions.
	ErrPrecisionMismatch = errors.New("hll: sketches have different precisions")
)

// Sketch is a thread-safe HyperLogLog cardinality estimator.
//
// The lock discipline mirrors the round structure of iterative callers:
// many goroutines may read a sketch concurrently (Merge sources, Estimate)
// while each sketch has at most one writer at a time.
type Sketch struct {
	mu        sync.RWMutex
	registers []uint8
	precision uint8
	alpha     float64
}

// New creates a HyperLogLog sketch with the given precision p.
// Precision must be in [4, 16]. The sketch allocates 2^p registers (bytes).
func New(precision uint8) (*Sketch, error) {
	if precision < minPrecision || precision > maxPrecision {
		return nil, ErrPrecisionOutOfRange
	}

	regCount := uint(1) << precision

	return &Sketch{
		registers: make([]uint8, regCount),
		precision: precision,
		alpha:     alpha(precision),
	}, nil
}

// Precision returns the configured precision of the sketch.
func (s *Sketch) Precision() uint8 {
	return s.precision
}

// RegisterCount returns the number of registers (2^p).
func (s *Sketch) RegisterCount() uint {
	return uint(1) << s.precision
}

// Add inserts data into the sketch by hashing it and updating the
// appropriate register with the observed rank. The low p bits of the hash
// select the register; the rank is the leading-zero count of the remaining
// 64-p bits plus one, so ranks lie in [1, 65-p]. Registers never decrease.
func (s *Sketch) Add(data []byte) {
	hashVal := hash64(data)

	regCount := uint64(1) << s.precision
	idx := hashVal & (regCount - 1)

	remaining := hashBits - uint(s.precision)
	w := hashVal >> s.precision

	rank := uint8(remaining-uint(bits.Len64(w))) + 1

	s.mu.Lock()

	if rank > s.registers[idx] {
		s.registers[idx] = rank
	}

	s.mu.Unlock()
}

// Estimate returns the estimated number of distinct elements added to the
// sketch, with range-dependent bias correction applied:
//
//   - small range (E <= 2.5m, some registers zero): linear counting.
//   - mid range (E <= 2^32/30): raw estimate, no correction.
//   - large range: hash-collision saturation correction.
func (s *Sketch) Estimate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.estimateLocked()
}

// Count returns the estimate rounded to the nearest integer.
func (s *Sketch) Count() uint64 {
	return uint64(math.Round(s.Estimate()))
}

// estimateLocked computes the corrected estimate. Caller must hold at least
// a read lock.
func (s *Sketch) estimateLocked() float64 {
	regCount := float64(uint(1) << s.precision)

	harmonicSum := 0.0
	zeros := 0.0

	for _, val := range s.registers {
		harmonicSum += math.Exp2(-float64(val))

		if val == 0 {
			zeros++
		}
	}

	raw := s.alpha * regCount * regCount / harmonicSum

	switch {
	case raw <= smallRangeFactor*regCount:
		if zeros > 0 {
			return regCount * math.Log(regCount/zeros)
		}

		return raw
	case raw <= twoPow32/largeRangeDivisor:
		return raw
	default:
		return -twoPow32 * math.Log(1-raw/twoPow32)
	}
}

// Merge combines another sketch into this one by taking the element-wise
// maximum of registers, which estimates the cardinality of the union of the
// two inserted sets. Both sketches must have the same precision.
func (s *Sketch) Merge(other *Sketch) error {
	if s.precision != other.precision {
		return ErrPrecisionMismatch
	}

	// Merging a sketch into itself is a no-op; locking both sides of the
	// same sketch would deadlock.
	if s == other {
		return nil
	}

	other.mu.RLock()
	defer other.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, val := range other.registers {
		if val > s.registers[i] {
			s.registers[i] = val
		}
	}

	return nil
}

// CopyFrom overwrites this sketch's registers with other's registers
// verbatim, without reallocating. Both sketches must have the same precision.
func (s *Sketch) CopyFrom(other *Sketch) error {
	if s.precision != other.precision {
		return ErrPrecisionMismatch
	}

	if s == other {
		return nil
	}

	other.mu.RLock()
	defer other.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.registers, other.registers)

	return nil
}

// Equal reports whether both sketches hold positionally identical registers.
// This is exact register equality, not estimate equality; it is the
// fixed-point test for iterative merging.
func (s *Sketch) Equal(other *Sketch) bool {
	if s.precision != other.precision {
		return false
	}

	if s == other {
		return true
	}

	other.mu.RLock()
	defer other.mu.RUnlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, val := range s.registers {
		if val != other.registers[i] {
			return false
		}
	}

	return true
}

// Clone creates a deep copy of the sketch. The copy shares no register
// storage with the original.
func (s *Sketch) Clone() *Sketch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	regs := make([]uint8, len(s.registers))
	copy(regs, s.registers)

	return &Sketch{
		registers: regs,
		precision: s.precision,
		alpha:     s.alpha,
	}
}

// Reset clears all registers without reallocating the underlying array.
func (s *Sketch) Reset() {
	s.mu.Lock()

	for i := range s.registers {
		s.registers[i] = 0
	}

	s.mu.Unlock()
}

// alpha returns the alpha_m constant used in the HLL estimate formula.
// For m >= 128, alpha_m = 0.7213 / (1 + 1.079/m).
func alpha(precision uint8) float64 {
	regCount := float64(uint(1) << precision)

	switch precision {
	case minPrecision:
		return alphaP4
	case precisionP5:
		return alphaP5
	case precisionP6:
		return alphaP6
	default:
		return alphaGenericNumerator / (1 + alphaGenericDenominatorCoeff/regCount)
	}
}

// hash64 computes a 64-bit hash of data using FNV-1a followed by a
// bit-mixing finalizer. The finalizer ensures good avalanche properties
// across all bit positions, which is critical for HyperLogLog where
// both low bits (register index) and high bits (rank) must be
// well-distributed.
func hash64(data []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(data)

	return mix64(h.Sum64())
}

// mix64 applies a splitmix64-style finalizer for full-avalanche mixing.
func mix64(v uint64) uint64 {
	v ^= v >> mixShift1
	v *= mixMul1
	v ^= v >> mixShift2
	v *= mixMul2
	v ^= v >> mixShift3

	return v
}
