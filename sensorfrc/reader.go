// Package sensorfrc implements the Sensor-FRC Reader: a single worker
// that periodically polls every sensor-bearing device on the network in
// batched selective FRC requests, persists the results, and optionally
// emits async progress reports.
package sensorfrc

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/bus"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/config"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa/embedfrc"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa/std/sensor"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/radio"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/store"
)

// rssiSensorType is the IQRF standard sensor type id for RSSI reported
// via beaming-compatible FRC.
const rssiSensorType = 133

// Report is published to the configured messaging list at the start and
// end of a reading cycle.
type Report struct {
	Event string // "started" or "done"
	Err   error
}

// Reader is the Sensor-FRC Reader worker.
type Reader struct {
	store *store.Store
	radio *radio.Coordinator
	cfg   config.SensorReader
	log   *logrus.Entry

	Reports bus.Topic[Report]

	mu      sync.Mutex
	running bool
	reading bool
	stopCh  chan struct{}
	cron    *cron.Cron
	entryID cron.EntryID
}

// New builds a Reader over its collaborators.
func New(s *store.Store, r *radio.Coordinator, cfg config.SensorReader, log *logrus.Entry) *Reader {
	return &Reader{store: s, radio: r, cfg: cfg, log: log, cron: cron.New()}
}

// Start begins the periodic polling loop; the daemon calls it at launch
// when cfg.AutoRun is set. Calling Start twice is a no-op.
func (r *Reader) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	r.cron.Start()
	r.scheduleNext(ctx, 0)
}

// Stop halts the polling loop; an in-flight reading cycle completes
// first.
func (r *Reader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	close(r.stopCh)
	r.cron.Remove(r.entryID)
}

// Status reports whether the loop is running and whether a reading
// cycle is currently in progress.
func (r *Reader) Status() (running bool, reading bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running, r.reading
}

// Invoke wakes the reader immediately, out of its normal schedule.
// Returns ErrNotRunning if the loop isn't started, or ErrReadInProgress
// if a cycle is already under way.
func (r *Reader) Invoke(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return ErrNotRunning
	}
	if r.reading {
		r.mu.Unlock()
		return ErrReadInProgress
	}
	r.mu.Unlock()

	go r.runCycle(ctx)
	return nil
}

// ErrNotRunning and ErrReadInProgress are the two lifecycle errors
// Invoke can return. The dispatcher has no handler for the reader's
// lifecycle, so neither error is mapped to a 1003/1004 status there.
var (
	ErrNotRunning     = errors.New("sensor-frc reader is not running")
	ErrReadInProgress = errors.New("sensor-frc reading already in progress")
)

// GetConfig returns the reader's current configuration.
func (r *Reader) GetConfig() config.SensorReader {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// SetConfig replaces the reader's configuration. A running loop picks up
// the new period and retry period on its next reschedule; it does not
// interrupt a cycle already in flight.
func (r *Reader) SetConfig(cfg config.SensorReader) {
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

func (r *Reader) scheduleNext(ctx context.Context, after time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return // stopped while a cycle was in flight
	}
	id, _ := r.cron.AddFunc(everySpec(after), func() {
		r.runCycle(ctx)
	})
	r.entryID = id
}

func everySpec(d time.Duration) string {
	if d <= 0 {
		d = time.Second
	}
	return "@every " + d.String()
}

// runCycle executes one full reading pass: acquire exclusive access (or
// back off retryPeriod on contention), read every sensor, persist, and
// reschedule for period minutes out.
func (r *Reader) runCycle(ctx context.Context) {
	r.mu.Lock()
	if r.reading {
		r.mu.Unlock()
		return
	}
	r.reading = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.reading = false
		r.mu.Unlock()
	}()

	h, ok := r.radio.TryAcquire()
	if !ok {
		r.log.Debug("sensor-frc reader: radio busy, backing off")
		r.cron.Remove(r.entryID)
		r.scheduleNext(ctx, r.cfg.RetryPeriod())
		return
	}
	defer h.Release()

	if r.cfg.AsyncReports {
		r.Reports.Publish(Report{Event: "started"})
	}

	err := r.readAll(ctx, h)

	if r.cfg.AsyncReports {
		r.Reports.Publish(Report{Event: "done", Err: err})
	}
	if err != nil {
		r.log.WithError(err).Warn("sensor-frc reading cycle failed")
	}

	r.cron.Remove(r.entryID)
	r.scheduleNext(ctx, r.cfg.Period())
}

// readAll implements steps 3-6 of the reading cycle: build the
// type→[(addr,typeIndex)] map from the store, poll RSSI, then poll every
// numeric sensor type in width-appropriate batches and persist results
// in one pass.
func (r *Reader) readAll(ctx context.Context, h *radio.Handle) error {
	now := time.Now()

	typeGroups, err := r.sensorTypesPresent(ctx)
	if err != nil {
		return err
	}

	if err := r.readRSSI(ctx, h, now); err != nil {
		r.log.WithError(err).Warn("RSSI read failed; continuing with quantity reads")
	}

	for _, sensorType := range typeGroups {
		if sensorType >= 0xC0 || sensorType == rssiSensorType {
			continue // breakdown sensors are read on demand; RSSI was already read above
		}
		if err := r.readType(ctx, h, sensorType, now); err != nil {
			r.log.WithError(err).WithField("sensorType", sensorType).Warn("sensor type read failed")
		}
	}
	return nil
}

// sensorTypesPresent enumerates every standard sensor type id with at
// least one device binding. store.SensorRepo has no "distinct types"
// query, so the reader probes each possible type via the same grouped
// lookup it needs for polling anyway.
func (r *Reader) sensorTypesPresent(ctx context.Context) ([]int, error) {
	const maxType = 0xC0
	var types []int
	for t := 0; t < maxType; t++ {
		grouped, err := r.store.DeviceSensors.ByTypeGroupedByDevice(ctx, t)
		if err != nil {
			return nil, err
		}
		if len(grouped) > 0 {
			types = append(types, t)
		}
	}
	return types, nil
}

// readType polls every device reporting sensorType, batched per the
// FRC width table, merging decoded samples into the store.
func (r *Reader) readType(ctx context.Context, h *radio.Handle, sensorType int, at time.Time) error {
	grouped, err := r.store.DeviceSensors.ByTypeGroupedByDevice(ctx, sensorType)
	if err != nil {
		return err
	}
	if len(grouped) == 0 {
		return nil
	}

	width := widthForType(sensorType)
	addrs := make([]uint16, 0, len(grouped))
	slotByAddr := map[uint16]sensorSlot{}
	for addr, bindings := range grouped {
		addrs = append(addrs, uint16(addr))
		if len(bindings) > 0 {
			slotByAddr[uint16(addr)] = sensorSlot{deviceID: bindings[0].DeviceID, globalIndex: bindings[0].GlobalIndex}
		}
	}

	for start := 0; start < len(addrs); start += width.BatchSize() {
		end := start + width.BatchSize()
		if end > len(addrs) {
			end = len(addrs)
		}
		batch := addrs[start:end]
		if err := r.readBatch(ctx, h, sensorType, width, batch, slotByAddr, at); err != nil {
			r.log.WithError(err).WithField("sensorType", sensorType).Warn("sensor FRC batch failed")
		}
	}
	return nil
}

// sensorSlot is the (device, global index) pair a polled sample is
// persisted against.
type sensorSlot struct {
	deviceID    int64
	globalIndex int
}

func (r *Reader) readBatch(ctx context.Context, h *radio.Handle, sensorType int, width embedfrc.Width, batch []uint16, slotByAddr map[uint16]sensorSlot, at time.Time) error {
	frcCmd := sensor.FrcCommandForWidth(int(width))
	req := embedfrc.SendSelectiveRequest(dpa.HWPIDDoNotCheck, frcCmd, batch, nil)
	res := h.ExecuteTransaction(ctx, req, radio.DefaultTimeoutFRC, 0)
	if res.Code != radio.TRN_OK {
		return errors.Errorf("sensor FRC send failed for type %d: %s", sensorType, res.Code)
	}
	sendResult, err := embedfrc.ParseSendResponse(res.Response)
	if err != nil {
		return err
	}

	data := sendResult.Data
	if width.NeedsExtraResult(len(batch)) {
		extraRes := h.ExecuteTransaction(ctx, embedfrc.ExtraResultRequest(dpa.HWPIDDoNotCheck), radio.DefaultTimeoutFRC, 0)
		if extraRes.Code != radio.TRN_OK {
			return errors.Errorf("sensor FRC extra-result failed for type %d: %s", sensorType, extraRes.Code)
		}
		extra, err := embedfrc.ParseExtraResultResponse(extraRes.Response)
		if err != nil {
			return err
		}
		data = append(data, extra...)
	}

	for i, addr := range batch {
		value, ok := decodeSample(data, i, int(width))
		if !ok {
			continue
		}
		slot, ok := slotByAddr[addr]
		if !ok {
			continue
		}
		if err := r.store.DeviceSensors.UpdateValue(ctx, slot.deviceID, slot.globalIndex, value, at); err != nil {
			return err
		}
	}
	return nil
}

func decodeSample(data []byte, index int, width int) (float64, bool) {
	offset := index * width
	if offset+width > len(data) {
		return 0, false
	}
	var raw uint32
	for i := 0; i < width; i++ {
		raw |= uint32(data[offset+i]) << (8 * i)
	}
	return float64(raw), true
}

// widthForType picks the FRC sample width for a standard sensor type.
// Real IQRF sensor types each declare their own width in the catalog;
// absent that lookup here, every type defaults to the widest (4-byte)
// encoding, which always has enough room to hold a narrower value.
func widthForType(sensorType int) embedfrc.Width {
	return embedfrc.Width4Byte
}

// readRSSI implements step 4 of the reading cycle: poll every device
// already bound to the RSSI sensor type through the normal batched FRC
// path, then fill the gap with a direct FRC memory read of the
// coordinator's RSSI register for every other known device. RSSI is
// never reported by Sensor_Enumerate — the coordinator tracks it for
// every routed transaction regardless of the node's own capabilities —
// so a binding only ever exists here because an earlier cycle created
// one via the fallback below.
func (r *Reader) readRSSI(ctx context.Context, h *radio.Handle, at time.Time) error {
	grouped, err := r.store.DeviceSensors.ByTypeGroupedByDevice(ctx, rssiSensorType)
	if err != nil {
		return err
	}
	if len(grouped) > 0 {
		if err := r.readType(ctx, h, rssiSensorType, at); err != nil {
			r.log.WithError(err).Warn("bound RSSI read failed")
		}
	}

	devices, err := r.store.Devices.All(ctx)
	if err != nil {
		return err
	}
	var missing []uint16
	for _, dev := range devices {
		if _, ok := grouped[dev.Address]; !ok {
			missing = append(missing, uint16(dev.Address))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return r.readRSSIMemory(ctx, h, missing, at)
}

// readRSSIMemory reads the RSSI register directly via FRC memory read
// for nodes with no RSSI binding yet, synthesizing the binding on first
// success so subsequent cycles fold them into the normal readType path.
func (r *Reader) readRSSIMemory(ctx context.Context, h *radio.Handle, addrs []uint16, at time.Time) error {
	rssiSensor, err := r.store.Sensors.FindOrCreate(ctx, store.Sensor{SID: "RSSI", Type: rssiSensorType, Name: "RSSI", ShortName: "RSSI"})
	if err != nil {
		return err
	}

	width := embedfrc.Width1Byte
	for start := 0; start < len(addrs); start += width.BatchSize() {
		end := start + width.BatchSize()
		if end > len(addrs) {
			end = len(addrs)
		}
		batch := addrs[start:end]
		req := embedfrc.SendSelectiveRequest(dpa.HWPIDDoNotCheck, width.MemoryReadCommand(), batch, nil)
		res := h.ExecuteTransaction(ctx, req, radio.DefaultTimeoutFRC, 0)
		if res.Code != radio.TRN_OK {
			r.log.WithField("code", res.Code).Warn("RSSI memory-read FRC failed")
			continue
		}
		sendResult, err := embedfrc.ParseSendResponse(res.Response)
		if err != nil {
			return err
		}
		for i, addr := range batch {
			if i >= len(sendResult.Data) {
				continue
			}
			dev, err := r.store.Devices.ByAddress(ctx, int(addr))
			if err != nil {
				continue
			}
			binding, err := r.store.DeviceSensors.FindOrCreateBinding(ctx, dev.ID, rssiSensor.ID, 0)
			if err != nil {
				return err
			}
			if err := r.store.DeviceSensors.UpdateValue(ctx, dev.ID, binding.GlobalIndex, float64(sendResult.Data[i]), at); err != nil {
				return err
			}
		}
	}
	return nil
}
