package media

import "time"

var epoch = time.Now()

// Now returns microseconds on a monotonic clock shared by the encoder
// side, the packetizer's PCR and the RTP timestamps.
func Now() int64 {
	return time.Since(epoch).Microseconds()
}
