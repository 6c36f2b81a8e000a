/*Package usbtmc implements datagram encoding and decoding for USB Test and
Measurement Class devices.  This is a 'minimum viable product' for the bulk
transfer mode, enough to drive SCPI instruments such as the Rigol DG4000
waveform generators over their rear USB device port.

It does not, for example, include features to support multi-packet
messaging, and thus assumes your data fits in the remote's buffer.

It also does not implement chatter / ping-pong for the case when data
does not fit in the remote buffer.

To send a message:
1.  Allocate a send buffer
2.  Write the header to it
3.  Write your data to it
4.  Ensure that the total transmission size is a multiple of 4 bytes before flushing

To receive a message:
1.  Allocate a receipt buffer
2.  Create a read header and send it on the Out endpoint
3.  Read from the In endpoint

These macros are implemented as Write() and Read() on the concrete USB type
defined in this package, which satisfies io.ReadWriteCloser so it can be
handed to a comm.Pool.
*/
package usbtmc

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/google/gousb"
	"github.com/pkg/errors"

	"github.com/nasa-jpl/golaborate-awg/comm"
)

const (
	// reserved is the byte to insert when the header calls for a reserved field
	reserved = 0x00

	headerSize = 12

	msgDevDepOut    = 0x01
	msgRequestDevIn = 0x02

	alignment = 4

	// bufSize is the largest transfer requested from the device in one read
	bufSize = 1500
)

// RigolVID is the USB vendor ID of Rigol Technologies
const RigolVID = 0x1AB1

// DG4000PID is the USB product ID of the DG4000 series waveform generators
const DG4000PID = 0x0641

// BTagger can generate atomic bTags
type BTagger interface {
	nextbTag() byte
}

// bTagGen is a concurrent-safe bTag generator
type bTagGen struct {
	// embedded mutex for concurrent safety
	sync.Mutex

	value byte
}

func newBTagGen() *bTagGen {
	return &bTagGen{}
}

// nextbTag returns 1..255, the standard forbids a zero bTag
func (b *bTagGen) nextbTag() byte {
	b.Lock()
	defer b.Unlock()
	b.value++
	if b.value == 0 {
		b.value = 1
	}
	return b.value
}

// invbTag computes the bitwise inversion of a btag, per USBTMC standard table 1 offset 2
func invbTag(b byte) byte {
	// ^ is bitwise exclusive OR.  Comparing with 0xff (all 1s) is the bitwise inversion
	return b ^ 0xff
}

// encBulkOutHeader creates the header defined in USBTMC standard, Table 3
func encBulkOutHeader(btag BTagger, datalen int) [headerSize]byte {
	out := [headerSize]byte{}
	/* data map by offset:
	0 MsgID, 1 byte, here hardcoded to 1; devDepMsgOut
	1 bTag, a single byte 1 < x < 255, unique and incrementing with each message
	2 bTagInverse, a single byte, the bitwise inverse of bTag.  Can be calculated with invbTag
	3 Reserved (0x00)
	4-7 transferSize, LSB first, exclusive of header and alignment
	8 bitmap, bit 0 EOM; we always send whole messages
	9-11 reserved
	*/
	tag := btag.nextbTag()
	out[0] = msgDevDepOut
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(datalen))
	out[8] = 0x01
	return out
}

// encBulkInHeader creates the header defined in USBTMC standard, Table 4.
// if terminator is nil, puts 0x00 in the header and sets the bit to use it to false
func encBulkInHeader(btag BTagger, bufsize int, terminator *byte) [headerSize]byte {
	out := [headerSize]byte{}
	tag := btag.nextbTag()
	out[0] = msgRequestDevIn
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(bufsize))
	if terminator != nil {
		out[8] = 0x02 // TermCharEnabled
		out[9] = *terminator
	}
	return out
}

// frame prepends the bulk out header to b and pads the result to a multiple of 4 bytes
func frame(btag BTagger, b []byte) []byte {
	hdr := encBulkOutHeader(btag, len(b))
	out := make([]byte, 0, headerSize+len(b)+alignment)
	out = append(out, hdr[:]...)
	out = append(out, b...)
	if residual := len(out) % alignment; residual > 0 {
		out = append(out, make([]byte, alignment-residual)...)
	}
	return out
}

// decodeBulkIn validates a DEV_DEP_MSG_IN transfer and returns its payload,
// stripped of the header and alignment bytes
func decodeBulkIn(buf []byte) ([]byte, error) {
	if len(buf) < headerSize {
		return nil, errors.Errorf("only received %d bytes, need at least %d to form header", len(buf), headerSize)
	}
	if buf[0] != msgRequestDevIn {
		return nil, errors.Errorf("unexpected MsgID %#x in bulk in header", buf[0])
	}
	if buf[2] != invbTag(buf[1]) {
		return nil, errors.New("bTag and its inverse do not match")
	}
	size := int(binary.LittleEndian.Uint32(buf[4:8]))
	data := buf[headerSize:]
	if size > len(data) {
		return nil, errors.Errorf("header announces %d bytes, only %d received", size, len(data))
	}
	return data[:size], nil
}

// USBDevice is a struct hiding the details of USB and exposing an io.ReadWriteCloser interface
type USBDevice struct {
	tagger  BTagger
	ctx     *gousb.Context
	device  *gousb.Device
	iface   *gousb.Interface
	in      *gousb.InEndpoint
	out     *gousb.OutEndpoint
	closer  func()
	term    byte
	pending []byte
}

// NewUSBDevice opens the first device matching the vendor and product ID and
// claims its bulk endpoints
func NewUSBDevice(vid, pid uint16) (*USBDevice, error) {
	d := &USBDevice{tagger: newBTagGen(), term: '\n'}
	d.ctx = gousb.NewContext()
	var err error
	d.device, err = d.ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		d.ctx.Close()
		return nil, err
	}
	if d.device == nil {
		d.ctx.Close()
		return nil, errors.Errorf("no USB device with ID %04x:%04x", vid, pid)
	}
	if err = d.device.SetAutoDetach(true); err != nil {
		d.release()
		return nil, err
	}
	d.iface, d.closer, err = d.device.DefaultInterface()
	if err != nil {
		d.release()
		return nil, err
	}
	for _, ep := range d.iface.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn && d.in == nil {
			d.in, err = d.iface.InEndpoint(ep.Number)
		} else if ep.Direction == gousb.EndpointDirectionOut && d.out == nil {
			d.out, err = d.iface.OutEndpoint(ep.Number)
		}
		if err != nil {
			d.release()
			return nil, err
		}
	}
	if d.in == nil || d.out == nil {
		d.release()
		return nil, errors.New("device does not expose a bulk in/out endpoint pair")
	}
	return d, nil
}

// Write sends b as a single, complete USBTMC message
func (d *USBDevice) Write(b []byte) (int, error) {
	_, err := d.out.Write(frame(d.tagger, b))
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Read requests a message from the device and copies its payload into b.
// A payload larger than b is delivered over several calls.
func (d *USBDevice) Read(b []byte) (int, error) {
	if len(d.pending) == 0 {
		hdr := encBulkInHeader(d.tagger, bufSize, &d.term)
		n, err := d.out.Write(hdr[:])
		if err != nil {
			return 0, err
		}
		if n != headerSize {
			return 0, errors.Errorf("wrote %d bytes, not full %d required to transmit read request", n, headerSize)
		}
		buf := make([]byte, bufSize+headerSize+alignment)
		n, err = d.in.Read(buf)
		if err != nil {
			return 0, err
		}
		d.pending, err = decodeBulkIn(buf[:n])
		if err != nil {
			return 0, err
		}
		if len(d.pending) == 0 {
			return 0, io.EOF
		}
	}
	n := copy(b, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

// Close releases the interface, the device, and the USB context
func (d *USBDevice) Close() error {
	return d.release()
}

func (d *USBDevice) release() error {
	if d.closer != nil {
		d.closer()
		d.closer = nil
	}
	var err error
	if d.device != nil {
		err = d.device.Close()
		d.device = nil
	}
	if d.ctx != nil {
		if cerr := d.ctx.Close(); err == nil {
			err = cerr
		}
		d.ctx = nil
	}
	return err
}

// Maker returns a comm.CreationFunc that opens the USB device vid:pid
func Maker(vid, pid uint16) comm.CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		d, err := NewUSBDevice(vid, pid)
		if err != nil {
			return nil, &comm.TransportError{Op: "open", Err: errors.Wrapf(err, "USB %04x:%04x", vid, pid)}
		}
		return d, nil
	}
}
