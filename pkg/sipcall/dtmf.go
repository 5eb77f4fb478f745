package sipcall

import (
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"time"

	"github.com/pion/rtp"
)

const (
	dtmfClockRate   = 8000
	dtmfVolume      = 10
	dtmfRedundancy  = 3
	dtmfInfoLength  = 250 * time.Millisecond
	dtmfMinDuration = 160
)

// RTPWriter отправляет RTP пакеты удаленной стороне
type RTPWriter interface {
	WriteRTP(pkt *rtp.Packet) error
	Close() error
}

// RTPDialer открывает RTPWriter к медиа адресу удаленной стороны
type RTPDialer func(host string, port int) (RTPWriter, error)

type udpRTPWriter struct {
	conn net.Conn
}

// DialRTP открывает UDP RTPWriter
func DialRTP(host string, port int) (RTPWriter, error) {
	conn, err := net.Dial("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия RTP сокета: %w", err)
	}
	return &udpRTPWriter{conn: conn}, nil
}

func (w *udpRTPWriter) WriteRTP(pkt *rtp.Packet) error {
	data, err := pkt.Marshal()
	if err != nil {
		return err
	}
	_, err = w.conn.Write(data)
	return err
}

func (w *udpRTPWriter) Close() error { return w.conn.Close() }

// dtmfEventCode код события RFC 4733 для символа DTMF
func dtmfEventCode(digit rune) (uint8, error) {
	switch {
	case digit >= '0' && digit <= '9':
		return uint8(digit - '0'), nil
	case digit == '*':
		return 10, nil
	case digit == '#':
		return 11, nil
	case digit >= 'A' && digit <= 'D':
		return uint8(digit-'A') + 12, nil
	}
	return 0, fmt.Errorf("недопустимый DTMF символ %q", digit)
}

// dtmfPayload payload telephone-event: event, E|R|volume, duration
func dtmfPayload(code uint8, end bool, duration uint16) []byte {
	data := make([]byte, 4)
	data[0] = code
	data[1] = dtmfVolume & 0x3F
	if end {
		data[1] |= 0x80
	}
	data[2] = byte(duration >> 8)
	data[3] = byte(duration)
	return data
}

// dtmfInfoBody тело SIP INFO application/dtmf-relay
func dtmfInfoBody(digit rune, duration time.Duration) []byte {
	return []byte(fmt.Sprintf("Signal=%c\r\nDuration=%d\r\n", digit, duration.Milliseconds()))
}

// dtmfSender формирует поток telephone-event пакетов одного звонка.
// Начало тона отправляется в PlayDtmfTone, конец в StopDtmfTone.
type dtmfSender struct {
	writer      RTPWriter
	payloadType uint8
	ssrc        uint32
	seq         uint16
	timestamp   uint32

	active  bool
	code    uint8
	started time.Time
}

func newDTMFSender(writer RTPWriter, payloadType uint8) *dtmfSender {
	return &dtmfSender{
		writer:      writer,
		payloadType: payloadType,
		ssrc:        rand.Uint32(),
		seq:         uint16(rand.Uint32()),
		timestamp:   rand.Uint32(),
	}
}

func (s *dtmfSender) packet(marker bool, payload []byte) *rtp.Packet {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    s.payloadType,
			SequenceNumber: s.seq,
			Timestamp:      s.timestamp,
			SSRC:           s.ssrc,
		},
		Payload: payload,
	}
	s.seq++
	return pkt
}

func (s *dtmfSender) start(code uint8, now time.Time) error {
	if s.active {
		if err := s.stop(now); err != nil {
			return err
		}
	}
	s.active = true
	s.code = code
	s.started = now

	for i := 0; i < dtmfRedundancy; i++ {
		if err := s.writer.WriteRTP(s.packet(i == 0, dtmfPayload(code, false, dtmfMinDuration))); err != nil {
			return fmt.Errorf("ошибка отправки DTMF: %w", err)
		}
	}
	return nil
}

func (s *dtmfSender) stop(now time.Time) error {
	if !s.active {
		return nil
	}
	s.active = false

	samples := now.Sub(s.started).Seconds() * dtmfClockRate
	duration := uint16(dtmfMinDuration)
	switch {
	case samples > 0xFFFF:
		duration = 0xFFFF
	case samples > dtmfMinDuration:
		duration = uint16(samples)
	}

	payload := dtmfPayload(s.code, true, duration)
	for i := 0; i < dtmfRedundancy; i++ {
		if err := s.writer.WriteRTP(s.packet(false, payload)); err != nil {
			return fmt.Errorf("ошибка отправки DTMF: %w", err)
		}
	}
	s.timestamp += uint32(duration)
	return nil
}
