package lnwire

// code derived from https://github.com/btcsuite/btcd/blob/master/wire/common.go

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// readElement reads a single value from r into element, dispatching on the
// concrete type of element the same way btcd's wire package decodes the
// fixed fields of a Bitcoin message.
func readElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *uint8:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = b[0]

	case *bool:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = b[0] != 0

	case *uint16:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint16(b[:])

	case *uint32:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint32(b[:])

	case *uint64:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint64(b[:])

	case *MilliSatoshi:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = MilliSatoshi(binary.BigEndian.Uint64(b[:]))

	case *[32]byte:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case *[]byte:
		if _, err := io.ReadFull(r, *e); err != nil {
			return err
		}

	case **btcec.PublicKey:
		var b [33]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		pubKey, err := btcec.ParsePubKey(b[:])
		if err != nil {
			return err
		}
		*e = pubKey

	case *Sig:
		var b [64]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = NewSigFromRawBytes(b)

	case *chainhash.Hash:
		var b [chainhash.HashSize]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		newHash, err := chainhash.NewHash(b[:])
		if err != nil {
			return err
		}
		*e = *newHash

	case *wire.OutPoint:
		var hashBytes [32]byte
		if _, err := io.ReadFull(r, hashBytes[:]); err != nil {
			return err
		}
		hash, err := chainhash.NewHash(hashBytes[:])
		if err != nil {
			return err
		}
		var idx uint16
		if err := readElement(r, &idx); err != nil {
			return err
		}
		*e = *wire.NewOutPoint(hash, uint32(idx))

	case *ChannelID:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case *ShortChannelID:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = NewShortChanIDFromInt(binary.BigEndian.Uint64(b[:]))

	case *RGB:
		var b [3]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		e.red, e.green, e.blue = b[0], b[1], b[2]

	case *Alias:
		var b [32]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		alias, err := newAlias(b[:])
		if err != nil {
			return err
		}
		*e = alias

	case *FeatureVector:
		var lenBytes [2]byte
		if _, err := io.ReadFull(r, lenBytes[:]); err != nil {
			return err
		}
		dataLen := binary.BigEndian.Uint16(lenBytes[:])
		data := make([]byte, dataLen)
		if _, err := io.ReadFull(r, data); err != nil {
			return err
		}
		*e = FeatureVector(data)

	case *[]net.Addr:
		var numAddrs uint16
		if err := readElement(r, &numAddrs); err != nil {
			return err
		}

		addrs := make([]net.Addr, 0, numAddrs)
		for i := uint16(0); i < numAddrs; i++ {
			var descriptor [1]byte
			if _, err := io.ReadFull(r, descriptor[:]); err != nil {
				return err
			}

			switch descriptor[0] {
			case 1:
				var ip [4]byte
				if _, err := io.ReadFull(r, ip[:]); err != nil {
					return err
				}
				var port uint16
				if err := readElement(r, &port); err != nil {
					return err
				}
				addrs = append(addrs, &net.TCPAddr{
					IP:   net.IP(ip[:]),
					Port: int(port),
				})

			case 2:
				var ip [16]byte
				if _, err := io.ReadFull(r, ip[:]); err != nil {
					return err
				}
				var port uint16
				if err := readElement(r, &port); err != nil {
					return err
				}
				addrs = append(addrs, &net.TCPAddr{
					IP:   net.IP(ip[:]),
					Port: int(port),
				})

			default:
				return fmt.Errorf("lnwire: unknown address "+
					"descriptor %d", descriptor[0])
			}
		}
		*e = addrs

	default:
		return fmt.Errorf("lnwire: unknown type %T passed to readElement", e)
	}

	return nil
}

// readElements deserializes a variable number of fields into the pointers
// given in el, in order.
func readElements(r io.Reader, el ...interface{}) error {
	for _, e := range el {
		if err := readElement(r, e); err != nil {
			return err
		}
	}
	return nil
}

// writeElement serializes a single field value to w the same way
// readElement parses it back.
func writeElement(w io.Writer, element interface{}) error {
	switch e := element.(type) {
	case uint8:
		if _, err := w.Write([]byte{e}); err != nil {
			return err
		}

	case bool:
		var b byte
		if e {
			b = 1
		}
		if _, err := w.Write([]byte{b}); err != nil {
			return err
		}

	case uint16:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], e)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case uint32:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], e)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case uint64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], e)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case MilliSatoshi:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(e))
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case [32]byte:
		if _, err := w.Write(e[:]); err != nil {
			return err
		}

	case []byte:
		if _, err := w.Write(e); err != nil {
			return err
		}

	case *btcec.PublicKey:
		if e == nil {
			return fmt.Errorf("lnwire: cannot write nil public key")
		}
		if _, err := w.Write(e.SerializeCompressed()); err != nil {
			return err
		}

	case Sig:
		if _, err := w.Write(e.rawBytes[:]); err != nil {
			return err
		}

	case chainhash.Hash:
		if _, err := w.Write(e[:]); err != nil {
			return err
		}

	case wire.OutPoint:
		if _, err := w.Write(e.Hash[:]); err != nil {
			return err
		}
		if err := writeElement(w, uint16(e.Index)); err != nil {
			return err
		}

	case ChannelID:
		if _, err := w.Write(e[:]); err != nil {
			return err
		}

	case ShortChannelID:
		return writeElement(w, e.ToUint64())

	case RGB:
		if _, err := w.Write([]byte{e.red, e.green, e.blue}); err != nil {
			return err
		}

	case Alias:
		if _, err := w.Write(e.data[:]); err != nil {
			return err
		}

	case FeatureVector:
		if len(e) > math.MaxUint16 {
			return fmt.Errorf("lnwire: feature vector too long")
		}
		if err := writeElement(w, uint16(len(e))); err != nil {
			return err
		}
		if _, err := w.Write(e); err != nil {
			return err
		}

	case []net.Addr:
		if err := writeElement(w, uint16(len(e))); err != nil {
			return err
		}
		for _, addr := range e {
			tcpAddr, ok := addr.(*net.TCPAddr)
			if !ok {
				return fmt.Errorf("lnwire: unsupported address "+
					"type %T", addr)
			}

			if ip4 := tcpAddr.IP.To4(); ip4 != nil {
				if _, err := w.Write([]byte{1}); err != nil {
					return err
				}
				if _, err := w.Write(ip4); err != nil {
					return err
				}
			} else {
				if _, err := w.Write([]byte{2}); err != nil {
					return err
				}
				ip16 := tcpAddr.IP.To16()
				if _, err := w.Write(ip16); err != nil {
					return err
				}
			}

			if err := writeElement(w, uint16(tcpAddr.Port)); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("lnwire: unknown type %T passed to writeElement", e)
	}

	return nil
}

// writeElements serializes a variable number of field values into w, in
// order.
func writeElements(w io.Writer, el ...interface{}) error {
	for _, e := range el {
		if err := writeElement(w, e); err != nil {
			return err
		}
	}
	return nil
}
