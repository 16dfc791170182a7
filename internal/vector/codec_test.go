package vector

import (
	"math"
	"math/rand"
	"testing"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, n := range []int{0, 1, 3, 384, 4096} {
		v := make([]float32, n)
		for i := range v {
			v[i] = (rng.Float32() - 0.5) * 2000
		}

		decoded, err := Decode(Encode(v))
		if err != nil {
			t.Fatalf("Decode(Encode(v)) len=%d: %v", n, err)
		}
		if len(decoded) != n {
			t.Fatalf("len = %d, want %d", len(decoded), n)
		}
		for i := range v {
			if math.Abs(float64(decoded[i]-v[i])) > 1e-6 {
				t.Errorf("element %d: got %v, want %v", i, decoded[i], v[i])
			}
		}
	}
}

func TestEncode_Empty(t *testing.T) {
	if got := Encode(nil); got != "[]" {
		t.Errorf("Encode(nil) = %q, want %q", got, "[]")
	}
	decoded, err := Decode("[]")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) != 0 {
		t.Errorf("Decode(\"[]\") len = %d, want 0", len(decoded))
	}
}

func TestEncode_ExactBits(t *testing.T) {
	// Values whose shortest decimal representation must parse back to the
	// same float32 bit pattern.
	v := []float32{0.1, 1.0 / 3.0, math.MaxFloat32, math.SmallestNonzeroFloat32, -2.5e-7}
	decoded, err := Decode(Encode(v))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := range v {
		if decoded[i] != v[i] {
			t.Errorf("element %d: got %v, want bit-identical %v", i, decoded[i], v[i])
		}
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, s := range []string{"", "1,2,3", "[1,abc]", "[1,2", "1,2]"} {
		if _, err := Decode(s); err == nil {
			t.Errorf("Decode(%q): expected error", s)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	// Identical vectors → 1.0
	if sim := CosineSimilarity([]float32{1, 0, 0}, []float32{1, 0, 0}); sim < 0.99 {
		t.Errorf("identical vectors: similarity = %f, want ~1.0", sim)
	}

	// Orthogonal vectors → 0.0
	if sim := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); sim > 0.01 {
		t.Errorf("orthogonal vectors: similarity = %f, want ~0.0", sim)
	}

	// Opposite vectors → -1.0
	if sim := CosineSimilarity([]float32{1, 0}, []float32{-1, 0}); sim > -0.99 {
		t.Errorf("opposite vectors: similarity = %f, want ~-1.0", sim)
	}

	// Mismatched lengths → 0
	if sim := CosineSimilarity([]float32{1}, []float32{1, 0}); sim != 0 {
		t.Errorf("mismatched lengths: similarity = %f, want 0", sim)
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	var norm float64
	for _, f := range v {
		norm += float64(f) * float64(f)
	}
	if math.Abs(norm-1.0) > 1e-6 {
		t.Errorf("norm = %f, want 1.0", norm)
	}

	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}
