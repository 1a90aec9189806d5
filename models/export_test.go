package models

// SetBarcodeGenerator replaces the barcode candidate source for tests.
func SetBarcodeGenerator(f func() string) (restore func()) {
	prev := newBarcode
	newBarcode = f
	return func() { newBarcode = prev }
}
