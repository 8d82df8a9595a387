package bufpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetBufferSmallBucket(t *testing.T) {
	buf := GetBuffer(64)
	require.Len(t, buf, 64)
	require.Equal(t, sizeSmall, cap(buf))
	PutBuffer(buf)
}

func TestGetBufferLargeBucket(t *testing.T) {
	buf := GetBuffer(sizeSmall + 1)
	require.Len(t, buf, sizeSmall+1)
	require.Equal(t, sizeLarge, cap(buf))
	PutBuffer(buf)
}

func TestPutBufferRoundTripReusesCapacity(t *testing.T) {
	buf := GetBuffer(sizeLarge)
	PutBuffer(buf)
	again := GetBuffer(100)
	require.Len(t, again, 100)
	PutBuffer(again)
}

func TestPutBufferNonStandardCapacityIgnored(t *testing.T) {
	odd := make([]byte, 17)
	// Must not panic; just isn't pooled.
	PutBuffer(odd)
}
