package sipcall

import (
	"sync"
	"testing"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/call_tracker/pkg/config"
	"github.com/arzzra/call_tracker/pkg/telecom"
)

func watchVideo(t *testing.T, c *Call) (*Video, *videoRecorder) {
	t.Helper()
	v, ok := c.VideoCall().(*Video)
	require.True(t, ok, "call must have a video session")
	rec := &videoRecorder{}
	v.RegisterCallback(rec)
	return v, rec
}

// TestRemoteAddsVideo проверяет re-INVITE, добавляющий видео в аудио звонок
func TestRemoteAddsVideo(t *testing.T) {
	s := newTestService(t, nil)
	c := s.active(t, "C1", audioOffer, telecom.VideoStateAudioOnly)
	callRec := s.listener.Recorder("C1")

	// подписка на видео при его появлении, как это делает роутер
	var vrec videoRecorder
	c.RegisterCallback(&attachOnChange{rec: &vrec})

	res := &responses{}
	s.onInvite(inDialog(c, sip.INVITE, 2, videoOffer), res.respond)

	assert.Empty(t, res.Codes(), "response waits for the application")
	assert.Contains(t, callRec.Events(), "video:true")
	require.NotNil(t, c.VideoCall())
	assert.Equal(t, []string{"peer:640x480", "modify_request:BIDIRECTIONAL"}, vrec.Events())

	v := c.VideoCall().(*Video)
	require.NoError(t, v.SendSessionModifyResponse(telecom.VideoProfile{
		State:   telecom.VideoStateBidirectional,
		Quality: telecom.VideoQualityHigh,
	}))

	assert.Equal(t, []int{200}, res.Codes())
	assert.Contains(t, string(res.Last().Body()), "m=video 10002")
	assert.Equal(t, telecom.VideoStateBidirectional, c.Details().VideoState)
	assert.Contains(t, vrec.Events(), "quality:HIGH")

	assert.ErrorIs(t, v.SendSessionModifyResponse(telecom.VideoProfile{}), ErrNoPendingRequest)
}

// attachOnChange подписывает videoRecorder на новую видео сессию
type attachOnChange struct {
	recorder
	rec *videoRecorder
}

func (a *attachOnChange) OnVideoCallChanged(call telecom.Call, video telecom.VideoCall) {
	if video != nil {
		video.RegisterCallback(a.rec)
	}
}

// TestRemoteModifyPending проверяет 491 для второго запроса до ответа на первый
func TestRemoteModifyPending(t *testing.T) {
	s := newTestService(t, nil)
	c := s.active(t, "V1", videoOffer, telecom.VideoStateBidirectional)
	_, vrec := watchVideo(t, c)

	paused := "v=0\r\no=- 1 2 IN IP4 10.0.0.2\r\ns=-\r\nc=IN IP4 10.0.0.2\r\nt=0 0\r\n" +
		"m=audio 4000 RTP/AVP 0\r\na=sendrecv\r\n" +
		"m=video 4002 RTP/AVP 96\r\na=sendonly\r\n"

	first := &responses{}
	s.onInvite(inDialog(c, sip.INVITE, 2, paused), first.respond)
	assert.Equal(t, []string{"modify_request:RX_ENABLED"}, vrec.Events())

	second := &responses{}
	s.onInvite(inDialog(c, sip.INVITE, 3, paused), second.respond)
	assert.Equal(t, []int{491}, second.Codes())
	assert.Empty(t, first.Codes())
}

// TestRemoteModifyTimeout проверяет 408 на запрос без ответа приложения
func TestRemoteModifyTimeout(t *testing.T) {
	s := newTestService(t, nil, WithRequestTimeout(20*time.Millisecond))
	c := s.active(t, "V1", videoOffer, telecom.VideoStateBidirectional)

	audioOnlyVideo := "v=0\r\no=- 1 2 IN IP4 10.0.0.2\r\ns=-\r\nc=IN IP4 10.0.0.2\r\nt=0 0\r\n" +
		"m=audio 4000 RTP/AVP 0\r\n" +
		"m=video 4002 RTP/AVP 96\r\na=recvonly\r\n"
	res := &responses{}
	s.onInvite(inDialog(c, sip.INVITE, 2, audioOnlyVideo), res.respond)

	require.Eventually(t, func() bool {
		codes := res.Codes()
		return len(codes) == 1 && codes[0] == 408
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, c.VideoCall().SendSessionModifyResponse(telecom.VideoProfile{}), ErrNoPendingRequest)
}

// TestRemoteRemovesVideo проверяет re-INVITE, отключающий видео
func TestRemoteRemovesVideo(t *testing.T) {
	s := newTestService(t, nil)
	c := s.active(t, "V1", videoOffer, telecom.VideoStateBidirectional)
	rec := s.listener.Recorder("V1")

	res := &responses{}
	s.onInvite(inDialog(c, sip.INVITE, 2, audioOffer), res.respond)

	assert.Equal(t, []int{200}, res.Codes())
	assert.Nil(t, c.VideoCall())
	assert.Contains(t, rec.Events(), "video:false")
	assert.Equal(t, telecom.VideoStateAudioOnly, c.Details().VideoState)
	assert.Zero(t, c.Details().Capabilities&telecom.CapabilitySupportsVTRemoteBidi)
}

// TestReinviteWithoutVideoChange проверяет немедленный ответ на re-INVITE
func TestReinviteWithoutVideoChange(t *testing.T) {
	s := newTestService(t, nil)
	c := s.active(t, "C1", audioOffer, telecom.VideoStateAudioOnly)

	res := &responses{}
	s.onInvite(inDialog(c, sip.INVITE, 2, audioOffer), res.respond)
	assert.Equal(t, []int{200}, res.Codes())
	assert.NotContains(t, string(res.Last().Body()), "m=video")

	bad := &responses{}
	s.onInvite(inDialog(c, sip.INVITE, 3, "garbage"), bad.respond)
	assert.Equal(t, []int{488}, bad.Codes())
}

// TestSendSessionModifyRequest проверяет исходящий запрос изменения видео
func TestSendSessionModifyRequest(t *testing.T) {
	s := newTestService(t, nil)
	c := s.active(t, "V1", videoOffer, telecom.VideoStateBidirectional)
	v, vrec := watchVideo(t, c)

	s.transport.body = []byte(videoOffer)
	request := telecom.VideoProfile{State: telecom.VideoStateTxEnabled, Quality: telecom.VideoQualityLow}
	require.NoError(t, v.SendSessionModifyRequest(request))

	reqs := s.transport.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, sip.INVITE, reqs[0].Method)
	assert.Contains(t, string(reqs[0].Body()), "a=sendonly")
	assert.Len(t, s.transport.Acks(), 1)

	assert.Equal(t, []string{"quality:LOW", "modify_response:SUCCESS:TX_ENABLED"}, vrec.Events())
	assert.Equal(t, telecom.VideoStateTxEnabled, c.Details().VideoState)
}

// TestSendSessionModifyRequestRejected проверяет отказ удаленной стороны
func TestSendSessionModifyRequestRejected(t *testing.T) {
	s := newTestService(t, nil)
	c := s.active(t, "V1", videoOffer, telecom.VideoStateBidirectional)
	v, vrec := watchVideo(t, c)
	s.transport.reject = true

	require.NoError(t, v.SendSessionModifyRequest(telecom.VideoProfile{State: telecom.VideoStateAudioOnly}))

	assert.Equal(t, []string{"modify_response:REJECTED_BY_REMOTE:BIDIRECTIONAL"}, vrec.Events())
	assert.Equal(t, telecom.VideoStateBidirectional, c.Details().VideoState)
}

// TestSendSessionModifyRequestInvalidState проверяет запрос на удержании
func TestSendSessionModifyRequestInvalidState(t *testing.T) {
	s := newTestService(t, nil)
	c := s.active(t, "V1", videoOffer, telecom.VideoStateBidirectional)
	require.NoError(t, c.Hold())
	v, vrec := watchVideo(t, c)

	err := v.SendSessionModifyRequest(telecom.VideoProfile{State: telecom.VideoStateTxEnabled})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, vrec.Events())
}

// TestCameraAndDataUsage проверяет запросы камеры и трафика
func TestCameraAndDataUsage(t *testing.T) {
	s := newTestService(t, nil)
	c := s.active(t, "V1", videoOffer, telecom.VideoStateBidirectional)
	v, vrec := watchVideo(t, c)

	require.NoError(t, v.RequestCameraCapabilities())
	require.NoError(t, v.RequestCallDataUsage())
	require.NoError(t, v.SetCamera("front"))
	require.NoError(t, v.SetCamera("front"))
	require.NoError(t, v.SetCamera(""))

	assert.Equal(t, []string{
		"camera:1280x720",
		"usage:true",
		"session:CAMERA_READY",
		"camera:1280x720",
		"session:TX_STOP",
	}, vrec.Events())
	assert.Empty(t, v.Camera())
	assert.Positive(t, c.DataUsage())
}

// TestConcurrentReinvites проверяет параллельные re-INVITE одного звонка,
// с SDP и без него
func TestConcurrentReinvites(t *testing.T) {
	capture := &rtpCapture{}
	s := newTestService(t, func(cfg *config.Config) {
		cfg.SIP.DtmfMode = config.DtmfModeRFC4733
	}, WithRTPDialer(capture.dial))
	c := s.active(t, "C1", audioOffer, telecom.VideoStateAudioOnly)

	res := &responses{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		body := audioOffer
		if i%2 == 1 {
			body = ""
		}
		wg.Add(1)
		go func(seq uint32, body string) {
			defer wg.Done()
			s.onInvite(inDialog(c, sip.INVITE, seq, body), res.respond)
		}(uint32(i+2), body)
	}
	wg.Wait()

	codes := res.Codes()
	require.Len(t, codes, 8)
	for _, code := range codes {
		assert.Equal(t, 200, code)
	}
	assert.Equal(t, telecom.CallStateActive, c.State())
	assert.Nil(t, c.VideoCall())

	// медиа адрес удаленной стороны сохраняется для DTMF
	require.NoError(t, c.PlayDtmfTone('5'))
	assert.Equal(t, "10.0.0.2", capture.host)
	assert.Equal(t, 4000, capture.port)
}
