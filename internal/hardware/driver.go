package hardware

import "context"

// Driver is the polymorphic hardware signing contract. One driver instance
// serves one (chain, vendor) variant over one device session; instances are
// not safe for concurrent use and callers serialize requests per device.
type Driver interface {
	// Chain reports the blockchain family this driver signs for
	Chain() Chain
	// Vendor reports the device family this driver talks to
	Vendor() Vendor

	// Init acquires the device session and resets any derived-key cache.
	// It must be called before any signing operation; it is safe to call
	// again to rebind after a device swap.
	Init(ctx context.Context) error

	// GetAddress resolves the address at the requested path, deriving from
	// a cached extended public key when the path suffix allows it
	GetAddress(ctx context.Context, req AddressRequest) (*AddressResponse, error)

	// SignPersonalMessage signs a free-form message in the chain's
	// personal-message scheme
	SignPersonalMessage(ctx context.Context, req SignMessageRequest) ([]byte, error)

	// SignTransaction signs a chain transaction. The request's Transaction
	// must be the variant matching the driver's chain.
	SignTransaction(ctx context.Context, req SignTransactionRequest) (*SignTransactionResponse, error)

	// SignTypedMessage signs EIP-712 typed data (EVM variants only)
	SignTypedMessage(ctx context.Context, req SignTypedMessageRequest) ([]byte, error)

	// SupportedPaths lists the derivation path templates of this variant
	SupportedPaths() []PathType

	// IsConnected reports whether the device session is live
	IsConnected() bool

	// Close releases the device session; repeated calls are harmless
	Close(ctx context.Context) error
}
