package sipcall

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/call_tracker/pkg/telecom"
)

const (
	directionSendRecv = "sendrecv"
	directionSendOnly = "sendonly"
	directionRecvOnly = "recvonly"
	directionInactive = "inactive"

	videoPayloadType = 96
)

var errNoAudio = errors.New("SDP не содержит audio")

// mediaOffer медиа параметры удаленной стороны, извлеченные из SDP
type mediaOffer struct {
	host           string
	audioPort      int
	audioDirection string
	hasVideo       bool
	videoPort      int
	videoDirection string
	width          int
	height         int
}

// videoState состояние видео с нашей стороны, соответствующее предложению
func (m mediaOffer) videoState() telecom.VideoState {
	if !m.hasVideo || m.videoPort == 0 {
		return telecom.VideoStateAudioOnly
	}
	return remoteDirectionToState(m.videoDirection)
}

// onHold true, если удаленная сторона поставила нас на удержание
func (m mediaOffer) onHold() bool {
	return m.audioDirection == directionSendOnly || m.audioDirection == directionInactive
}

func remoteDirectionToState(direction string) telecom.VideoState {
	switch direction {
	case directionSendOnly:
		return telecom.VideoStateRxEnabled
	case directionRecvOnly:
		return telecom.VideoStateTxEnabled
	case directionInactive:
		return telecom.VideoStatePaused
	default:
		return telecom.VideoStateBidirectional
	}
}

func stateToDirection(state telecom.VideoState) string {
	switch state & telecom.VideoStateBidirectional {
	case telecom.VideoStateBidirectional:
		if state&telecom.VideoStatePaused != 0 {
			return directionInactive
		}
		return directionSendRecv
	case telecom.VideoStateTxEnabled:
		return directionSendOnly
	case telecom.VideoStateRxEnabled:
		return directionRecvOnly
	default:
		return directionInactive
	}
}

func directionOf(attrs []sdp.Attribute) string {
	for _, a := range attrs {
		switch a.Key {
		case directionSendRecv, directionSendOnly, directionRecvOnly, directionInactive:
			return a.Key
		}
	}
	return ""
}

func parseSDP(body []byte) (mediaOffer, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal(body); err != nil {
		return mediaOffer{}, fmt.Errorf("ошибка разбора SDP: %w", err)
	}

	offer := mediaOffer{}
	if sd.ConnectionInformation != nil && sd.ConnectionInformation.Address != nil {
		offer.host = sd.ConnectionInformation.Address.Address
	}
	sessionDir := directionOf(sd.Attributes)
	if sessionDir == "" {
		sessionDir = directionSendRecv
	}

	hasAudio := false
	for _, md := range sd.MediaDescriptions {
		dir := directionOf(md.Attributes)
		if dir == "" {
			dir = sessionDir
		}
		switch md.MediaName.Media {
		case "audio":
			if hasAudio {
				continue
			}
			hasAudio = true
			offer.audioPort = md.MediaName.Port.Value
			offer.audioDirection = dir
			if md.ConnectionInformation != nil && md.ConnectionInformation.Address != nil {
				offer.host = md.ConnectionInformation.Address.Address
			}
		case "video":
			if offer.hasVideo {
				continue
			}
			offer.hasVideo = true
			offer.videoPort = md.MediaName.Port.Value
			offer.videoDirection = dir
			for _, a := range md.Attributes {
				if a.Key != "framesize" {
					continue
				}
				var pt, w, h int
				if _, err := fmt.Sscanf(a.Value, "%d %d-%d", &pt, &w, &h); err == nil {
					offer.width, offer.height = w, h
				}
			}
		}
	}
	if !hasAudio {
		return mediaOffer{}, errNoAudio
	}
	return offer, nil
}

// sdpParams параметры локального SDP
type sdpParams struct {
	host      string
	sessionID uint64
	version   uint64
	audioPort int
	dtmfType  uint8
	hold      bool

	// withVideo добавляет m=video. При video == AudioOnly порт равен 0.
	withVideo bool
	videoPort int
	video     telecom.VideoState
	width     int
	height    int
}

func connection(host string) *sdp.ConnectionInformation {
	return &sdp.ConnectionInformation{
		NetworkType: "IN",
		AddressType: "IP4",
		Address:     &sdp.Address{Address: host},
	}
}

func buildSDP(p sdpParams) ([]byte, error) {
	sd := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      p.sessionID,
			SessionVersion: p.version,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: p.host,
		},
		SessionName:           "calltracker",
		ConnectionInformation: connection(p.host),
		TimeDescriptions:      []sdp.TimeDescription{{Timing: sdp.Timing{}}},
	}

	dtmf := strconv.Itoa(int(p.dtmfType))
	audioDir := directionSendRecv
	if p.hold {
		audioDir = directionSendOnly
	}
	audio := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   "audio",
			Port:    sdp.RangedPort{Value: p.audioPort},
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{"0", "8", dtmf},
		},
		Attributes: []sdp.Attribute{
			{Key: "rtpmap", Value: "0 PCMU/8000"},
			{Key: "rtpmap", Value: "8 PCMA/8000"},
			{Key: "rtpmap", Value: dtmf + " telephone-event/8000"},
			{Key: "fmtp", Value: dtmf + " 0-15"},
			{Key: "ptime", Value: "20"},
			{Key: audioDir},
		},
	}
	sd.MediaDescriptions = append(sd.MediaDescriptions, audio)

	if p.withVideo {
		port := p.videoPort
		if !p.video.IsVideo() && p.video&telecom.VideoStatePaused == 0 {
			port = 0
		}
		pt := strconv.Itoa(videoPayloadType)
		video := &sdp.MediaDescription{
			MediaName: sdp.MediaName{
				Media:   "video",
				Port:    sdp.RangedPort{Value: port},
				Protos:  []string{"RTP", "AVP"},
				Formats: []string{pt},
			},
			Attributes: []sdp.Attribute{
				{Key: "rtpmap", Value: pt + " H264/90000"},
				{Key: "fmtp", Value: pt + " profile-level-id=42e01f;packetization-mode=1"},
			},
		}
		if p.width > 0 && p.height > 0 {
			video.Attributes = append(video.Attributes, sdp.Attribute{
				Key:   "framesize",
				Value: fmt.Sprintf("%s %d-%d", pt, p.width, p.height),
			})
		}
		dir := stateToDirection(p.video)
		if p.hold && dir != directionInactive {
			dir = directionSendOnly
		}
		video.Attributes = append(video.Attributes, sdp.Attribute{Key: dir})
		sd.MediaDescriptions = append(sd.MediaDescriptions, video)
	}

	return sd.Marshal()
}
