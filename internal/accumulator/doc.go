// Package accumulator buffers streamed partial updates per backend
// session until an idle signal finalizes them. It is the secondary
// response path; the polling correlator remains the system of record.
package accumulator
