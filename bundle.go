package di

import "fmt"

// A Bundle registers a group of related services, scopes and compiler passes.
//
// Example:
//
//	type MailBundle struct{}
//
//	func (MailBundle) Build(b *di.ContainerBuilder) error {
//		b.Register("mail.transport", mail.NewSMTPTransport, di.WithArgs(di.Param("mail.host")))
//		b.Register("mail.manager", mail.NewManager, di.WithArgs(di.Ref("mail.transport")))
//		return nil
//	}
type Bundle interface {
	Build(b *ContainerBuilder) error
}

// BundleFunc adapts a function to the [Bundle] interface.
type BundleFunc func(b *ContainerBuilder) error

// Build calls f(b).
func (f BundleFunc) Build(b *ContainerBuilder) error {
	return f(b)
}

func bundleName(b Bundle) string {
	if n, ok := b.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", b)
}
