// Package image reads and writes the physical layer of CLI assemblies.
//
// An assembly is a PE file whose data directory 14 points at a CLI header.
// The header locates the metadata root, which holds four heaps and up to
// forty-five fixed-width row tables (ECMA-335 Partition II, chapters 22-24).
//
// # Reading
//
//	img, err := image.Open("System.Runtime.dll")
//	if err != nil {
//	    return err
//	}
//	md := img.Metadata
//	for row := uint32(1); row <= md.RowCount(image.TableTypeDef); row++ {
//	    td := md.TypeDef(row)
//	    fmt.Println(td.Namespace, td.Name)
//	}
//
// Row accessors materialize strings, blobs and GUIDs from the heaps and decode
// coded indexes into tokens. Out-of-range rows yield zero rows rather than
// errors; callers that need to tell the difference check Metadata.Valid.
//
// # Writing
//
// Builder produces metadata roots and minimal PE32 images. It exists so that
// fixtures are produced by the same schemas the reader uses:
//
//	b := image.NewBuilder()
//	b.AddModule(image.ModuleRow{Name: "Demo.dll"})
//	b.AddTypeDef(image.TypeDefRow{Name: "<Module>"})
//	img, err := b.BuildImage()
package image
