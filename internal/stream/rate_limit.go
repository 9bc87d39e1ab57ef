package stream

import "sync"

// refusal says why a playback was not admitted.
type refusal string

const (
	admitted     refusal = ""
	refusedPerIP refusal = "per_ip"
	refusedTotal refusal = "total"
)

// playbackSlots bounds concurrent playbacks per client IP and across the
// process. Each playback owns a frame store, so capacity is also the number
// of stores streaming at once.
type playbackSlots struct {
	mu       sync.Mutex
	byIP     map[string]int
	inUse    int
	perIP    int
	capacity int
}

func newPlaybackSlots(perIP, capacity int) *playbackSlots {
	return &playbackSlots{
		byIP:     make(map[string]int),
		perIP:    perIP,
		capacity: capacity,
	}
}

// take claims a slot for ip. The process-wide cap is checked first.
func (p *playbackSlots) take(ip string) refusal {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inUse >= p.capacity {
		return refusedTotal
	}
	if p.byIP[ip] >= p.perIP {
		return refusedPerIP
	}
	p.byIP[ip]++
	p.inUse++
	return admitted
}

// give returns a slot taken for ip.
func (p *playbackSlots) give(ip string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.byIP[ip] == 0 {
		return
	}
	p.inUse--
	if p.byIP[ip]--; p.byIP[ip] == 0 {
		delete(p.byIP, ip)
	}
}

func (p *playbackSlots) held(ip string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byIP[ip]
}

func (p *playbackSlots) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}
