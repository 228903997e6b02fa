package gateway

import (
	"fmt"
	"math"
)

type scripted[T any] struct {
	value T
	err   error
}

type queue[T any] struct {
	items []scripted[T]
	last  *scripted[T]
}

// next pops the head of the queue. An exhausted queue keeps answering with its
// last item so long-running property tests need not script every round.
func (q *queue[T]) next() (T, error) {
	if len(q.items) > 0 {
		item := q.items[0]
		q.items = q.items[1:]
		q.last = &item
		return item.value, item.err
	}
	if q.last != nil {
		return q.last.value, q.last.err
	}
	var zero T
	return zero, ErrNoReading
}

func (q *queue[T]) push(v T, err error) {
	q.items = append(q.items, scripted[T]{value: v, err: err})
}

type airSample struct {
	temp, humidity float64
}

// Write records one digital write made through a Scripted gateway.
type Write struct {
	Channel Channel
	High    bool
	AtMilli uint32
}

// Scripted is a test double that replays queued samples and records every
// digital write. Now, if set, timestamps the writes.
type Scripted struct {
	Now func() uint32

	analog  map[Channel]*queue[int]
	digital map[Channel]*queue[bool]
	air     queue[airSample]
	soil    queue[float64]

	Writes []Write
	levels map[Channel]bool
}

// NewScripted returns an empty Scripted gateway.
func NewScripted() *Scripted {
	return &Scripted{
		analog:  make(map[Channel]*queue[int]),
		digital: make(map[Channel]*queue[bool]),
		levels:  make(map[Channel]bool),
	}
}

func (s *Scripted) analogQueue(ch Channel) *queue[int] {
	q, ok := s.analog[ch]
	if !ok {
		q = &queue[int]{}
		s.analog[ch] = q
	}
	return q
}

func (s *Scripted) digitalQueue(ch Channel) *queue[bool] {
	q, ok := s.digital[ch]
	if !ok {
		q = &queue[bool]{}
		s.digital[ch] = q
	}
	return q
}

// QueueAnalog appends raw samples for ch.
func (s *Scripted) QueueAnalog(ch Channel, raw ...int) {
	for _, r := range raw {
		s.analogQueue(ch).push(r, nil)
	}
}

// QueueAnalogError appends a failed read for ch.
func (s *Scripted) QueueAnalogError(ch Channel, err error) {
	s.analogQueue(ch).push(0, err)
}

// QueueDigital appends raw pin levels for ch.
func (s *Scripted) QueueDigital(ch Channel, high ...bool) {
	for _, h := range high {
		s.digitalQueue(ch).push(h, nil)
	}
}

// QueueDigitalError appends a failed read for ch.
func (s *Scripted) QueueDigitalError(ch Channel, err error) {
	s.digitalQueue(ch).push(false, err)
}

// QueueAir appends one DHT sample. Use math.NaN() for a misread value.
func (s *Scripted) QueueAir(temp, humidity float64) {
	s.air.push(airSample{temp: temp, humidity: humidity}, nil)
}

// QueueAirError appends a failed DHT transaction.
func (s *Scripted) QueueAirError(err error) {
	s.air.push(airSample{temp: math.NaN(), humidity: math.NaN()}, err)
}

// QueueSoil appends one-wire temperatures.
func (s *Scripted) QueueSoil(temps ...float64) {
	for _, t := range temps {
		s.soil.push(t, nil)
	}
}

func (s *Scripted) ReadAnalog(ch Channel) (int, error) {
	return s.analogQueue(ch).next()
}

func (s *Scripted) ReadDigital(ch Channel) (bool, error) {
	return s.digitalQueue(ch).next()
}

func (s *Scripted) WriteDigital(ch Channel, high bool) error {
	var at uint32
	if s.Now != nil {
		at = s.Now()
	}
	s.Writes = append(s.Writes, Write{Channel: ch, High: high, AtMilli: at})
	s.levels[ch] = high
	return nil
}

// Level reports the last level written to ch.
func (s *Scripted) Level(ch Channel) bool {
	return s.levels[ch]
}

func (s *Scripted) ReadTemperatureHumidity() (float64, float64, error) {
	a, err := s.air.next()
	if err != nil {
		return math.NaN(), math.NaN(), fmt.Errorf("dht: %w", err)
	}
	return a.temp, a.humidity, nil
}

func (s *Scripted) ReadOneWireTemperature() (float64, error) {
	t, err := s.soil.next()
	if err != nil {
		return math.NaN(), fmt.Errorf("onewire: %w", err)
	}
	return t, nil
}
