package transfer

// Percent converts a received/total byte pair into a whole percentage,
// flooring. A zero or unknown total is 0%, never a division by zero.
func Percent(received, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(float64(received) / float64(total) * 100)
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return p
}
