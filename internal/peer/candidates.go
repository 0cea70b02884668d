package peer

import "github.com/pion/webrtc/v4"

// candidateQueue buffers ICE candidates discovered before the remote
// description is applied. Flush preserves discovery order.
type candidateQueue struct {
	ready   bool
	pending []webrtc.ICECandidateInit
}

// Add hands the candidate to apply immediately once the queue is ready,
// otherwise buffers it.
func (q *candidateQueue) Add(c webrtc.ICECandidateInit, apply func(webrtc.ICECandidateInit)) {
	if q.ready {
		apply(c)
		return
	}
	q.pending = append(q.pending, c)
}

// Flush marks the queue ready and applies everything buffered so far, in
// the order the candidates arrived.
func (q *candidateQueue) Flush(apply func(webrtc.ICECandidateInit)) {
	q.ready = true
	for _, c := range q.pending {
		apply(c)
	}
	q.pending = nil
}
