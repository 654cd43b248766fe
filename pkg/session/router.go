package session

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/blesession/internal/device"
	"github.com/srg/blesession/internal/gatt"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// router validates payloads of ready features and hands them to the
// application. It runs on the session worker; the accessors used by Manager
// read through locks or atomics.
type router struct {
	id     string
	out    *dispatcher
	logger *logrus.Logger

	disMu sync.RWMutex
	dis   *orderedmap.OrderedMap[string, string] // survives automatic reconnects

	ftpSize int
	ftp     atomic.Pointer[ringbuffer.RingBuffer]

	delivered atomic.Int64
	notReady  atomic.Int64
	malformed atomic.Int64
	ftpLost   atomic.Int64
}

func newRouter(id string, out *dispatcher, logger *logrus.Logger, ftpSize int) *router {
	r := &router{
		id:      id,
		out:     out,
		logger:  logger,
		dis:     orderedmap.New[string, string](),
		ftpSize: ftpSize,
	}
	r.resetFileTransfer()
	return r
}

// route delivers ev if its feature is ready. Payloads of features that are not
// ready are dropped and counted; malformed payloads likewise.
func (r *router) route(ready bool, ev evPayload) {
	if !ready {
		r.notReady.Add(1)
		return
	}

	switch ev.feature {
	case device.FeatureHeartRate:
		sample, err := gatt.ParseHeartRate(ev.data, ev.at)
		if err != nil {
			r.dropMalformed(ev, err)
			return
		}
		r.out.hr(r.id, sample)

	case device.FeatureBattery:
		level, err := gatt.ParseBatteryLevel(ev.data)
		if err != nil {
			r.dropMalformed(ev, err)
			return
		}
		r.out.battery(r.id, level)

	case device.FeatureDeviceInformation:
		value, err := gatt.FormatDIS(ev.uuid, ev.data)
		if err != nil {
			r.dropMalformed(ev, err)
			return
		}
		r.disMu.Lock()
		if old, ok := r.dis.Get(ev.uuid); !ok || old != value {
			r.dis.Set(ev.uuid, value)
		}
		r.disMu.Unlock()
		r.out.disValue(r.id, ev.uuid, value)

	case device.FeatureFileTransfer:
		rb := r.ftp.Load()
		n, err := rb.Write(ev.data)
		if err != nil {
			lost := int64(len(ev.data) - n)
			r.ftpLost.Add(lost)
			r.logger.WithFields(logrus.Fields{
				"device_id": r.id,
				"lost":      lost,
				"error":     err,
			}).Warn("File transfer buffer overflow")
		}

	default:
		r.notReady.Add(1)
		return
	}
	r.delivered.Add(1)
}

func (r *router) dropMalformed(ev evPayload, err error) {
	r.malformed.Add(1)
	r.logger.WithFields(logrus.Fields{
		"device_id": r.id,
		"feature":   ev.feature.String(),
		"error":     err,
	}).Debug("Malformed payload dropped")
}

// dropStale counts a payload from a link that is no longer current.
func (r *router) dropStale() {
	r.notReady.Add(1)
}

// resetFileTransfer discards buffered file transfer bytes of a previous link.
func (r *router) resetFileTransfer() {
	r.ftp.Store(ringbuffer.New(r.ftpSize))
}

// readFileTransfer drains up to len(p) buffered file transfer bytes.
func (r *router) readFileTransfer(p []byte) (int, error) {
	n, err := r.ftp.Load().Read(p)
	if errors.Is(err, ringbuffer.ErrIsEmpty) {
		return 0, nil
	}
	return n, err
}

// deviceInformation returns the accumulated record in first-received order.
func (r *router) deviceInformation() *orderedmap.OrderedMap[string, string] {
	r.disMu.RLock()
	defer r.disMu.RUnlock()
	cp := orderedmap.New[string, string]()
	for pair := r.dis.Oldest(); pair != nil; pair = pair.Next() {
		cp.Set(pair.Key, pair.Value)
	}
	return cp
}

func (r *router) stats() Stats {
	return Stats{
		Delivered:        r.delivered.Load(),
		DroppedNotReady:  r.notReady.Load(),
		DroppedMalformed: r.malformed.Load(),
		FileTransferLost: r.ftpLost.Load(),
	}
}
