package protocol

// PSKSize is the pre-shared secret size. The PSK keys the record HMAC and
// is the value both peers sign during the handshake.
const PSKSize = 32

// DefaultPSK is the compiled-in pre-shared secret, identical on both peers.
// Deployments can override it through configuration; both sides must agree.
var DefaultPSK = [PSKSize]byte{
	0x29, 0x49, 0xde, 0xc2, 0x3e, 0x1e, 0x34, 0xb5,
	0x2d, 0x22, 0xb5, 0xba, 0x4c, 0x34, 0x23, 0x3a,
	0x9d, 0x3f, 0xe2, 0x97, 0x14, 0xbe, 0x24, 0x62,
	0x81, 0x0c, 0x86, 0xb1, 0xf6, 0x92, 0x54, 0xd6,
}
