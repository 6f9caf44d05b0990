package dialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceManagerNextLocalCSeq(t *testing.T) {
	sm := NewSequenceManager(100, true)

	for i := uint32(1); i <= 5; i++ {
		assert.Equal(t, 100+i, sm.NextLocalCSeq())
	}

	assert.Equal(t, uint32(105), sm.GetLocalCSeq())
	assert.Equal(t, uint32(105), sm.GetLocalCSeq())
}

func TestSequenceManagerValidateRemoteCSeq(t *testing.T) {
	tests := []struct {
		name       string
		setup      func() *SequenceManager
		cseq       uint32
		method     string
		want       bool
		wantRemote uint32
	}{
		{
			name:       "first remote request",
			setup:      func() *SequenceManager { return NewSequenceManager(100, true) },
			cseq:       200,
			method:     "INVITE",
			want:       true,
			wantRemote: 200,
		},
		{
			name: "increasing CSeq",
			setup: func() *SequenceManager {
				sm := NewSequenceManager(100, true)
				sm.ValidateRemoteCSeq(200, "INVITE")
				return sm
			},
			cseq:       201,
			method:     "BYE",
			want:       true,
			wantRemote: 201,
		},
		{
			name: "same CSeq is a retransmission",
			setup: func() *SequenceManager {
				sm := NewSequenceManager(100, true)
				sm.ValidateRemoteCSeq(200, "INVITE")
				return sm
			},
			cseq:       200,
			method:     "INVITE",
			want:       true,
			wantRemote: 200,
		},
		{
			name: "decreasing CSeq is invalid",
			setup: func() *SequenceManager {
				sm := NewSequenceManager(100, true)
				sm.ValidateRemoteCSeq(200, "INVITE")
				return sm
			},
			cseq:       199,
			method:     "BYE",
			want:       false,
			wantRemote: 200,
		},
		{
			name: "ACK matches stored INVITE CSeq",
			setup: func() *SequenceManager {
				sm := NewSequenceManager(100, true)
				sm.SetInviteCSeq(150, "INVITE")
				sm.ValidateRemoteCSeq(200, "INVITE")
				return sm
			},
			cseq:       150,
			method:     "ACK",
			want:       true,
			wantRemote: 200,
		},
		{
			name: "ACK matches current remote CSeq",
			setup: func() *SequenceManager {
				sm := NewSequenceManager(100, true)
				sm.ValidateRemoteCSeq(200, "INVITE")
				return sm
			},
			cseq:       200,
			method:     "ACK",
			want:       true,
			wantRemote: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := tt.setup()
			got := sm.ValidateRemoteCSeq(tt.cseq, tt.method)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantRemote, sm.remoteCSeq)
		})
	}
}

func TestSequenceManagerSetGetInviteCSeq(t *testing.T) {
	sm := NewSequenceManager(100, true)

	assert.Zero(t, sm.GetInviteCSeq())

	sm.SetInviteCSeq(123, "INVITE")
	assert.Equal(t, uint32(123), sm.GetInviteCSeq())

	sm.SetInviteCSeq(456, "BYE")
	assert.Equal(t, uint32(123), sm.GetInviteCSeq())
}

func TestParseCSeq(t *testing.T) {
	tests := []struct {
		name       string
		cseqHeader string
		wantNum    uint32
		wantMethod string
		wantError  bool
	}{
		{name: "valid CSeq", cseqHeader: "1 INVITE", wantNum: 1, wantMethod: "INVITE"},
		{name: "valid CSeq with multiple spaces", cseqHeader: "123   BYE", wantNum: 123, wantMethod: "BYE"},
		{name: "valid CSeq with tabs", cseqHeader: "456\tREGISTER", wantNum: 456, wantMethod: "REGISTER"},
		{name: "valid CSeq with trailing spaces", cseqHeader: "789 OPTIONS  ", wantNum: 789, wantMethod: "OPTIONS"},
		{name: "large CSeq number", cseqHeader: "2147483647 ACK", wantNum: 2147483647, wantMethod: "ACK"},
		{name: "missing method", cseqHeader: "123", wantError: true},
		{name: "missing number", cseqHeader: "INVITE", wantError: true},
		{name: "invalid number", cseqHeader: "abc INVITE", wantError: true},
		{name: "empty string", cseqHeader: "", wantError: true},
		{name: "only spaces", cseqHeader: "   ", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotNum, gotMethod, err := ParseCSeq(tt.cseqHeader)

			if tt.wantError {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.wantNum, gotNum)
			assert.Equal(t, tt.wantMethod, gotMethod)
		})
	}
}

func TestFormatCSeq(t *testing.T) {
	tests := []struct {
		cseq   uint32
		method string
		want   string
	}{
		{1, "INVITE", "1 INVITE"},
		{123, "BYE", "123 BYE"},
		{2147483647, "REGISTER", "2147483647 REGISTER"},
		{0, "ACK", "0 ACK"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCSeq(tt.cseq, tt.method))
	}
}

func TestGenerateInitialCSeq(t *testing.T) {
	seen := make(map[uint32]bool)
	for i := 0; i < 20; i++ {
		cseq := GenerateInitialCSeq()
		assert.LessOrEqual(t, cseq, uint32(2147483647))
		seen[cseq] = true
	}
	assert.Greater(t, len(seen), 1, "GenerateInitialCSeq() should not return a constant value")
}

func TestSequenceManagerConcurrency(t *testing.T) {
	sm := NewSequenceManager(0, true)

	done := make(chan bool)

	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				sm.NextLocalCSeq()
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		go func(base uint32) {
			for j := uint32(0); j < 100; j++ {
				sm.ValidateRemoteCSeq(base+j, "INVITE")
			}
			done <- true
		}(uint32(i * 1000))
	}

	for i := 0; i < 20; i++ {
		<-done
	}

	assert.Equal(t, uint32(1000), sm.GetLocalCSeq())
}
