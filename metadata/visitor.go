package metadata

// Visitor receives one call per object kind through Object.Accept. Embed
// BaseVisitor to implement only the calls of interest.
type Visitor interface {
	// Units and references to them.
	VisitAssembly(*Assembly)
	VisitModule(*Module)
	VisitAssemblyReference(*AssemblyReference)
	VisitModuleReference(*ModuleReference)
	VisitFileReference(*FileReference)

	// Namespaces.
	VisitRootNamespace(*RootNamespace)
	VisitNestedNamespace(*NestedNamespace)
	VisitRootNamespaceReference(*RootNamespaceReference)
	VisitNestedNamespaceReference(*NestedNamespaceReference)

	// Types.
	VisitTypeDefinition(*TypeDefinition)
	VisitNamespaceTypeReference(*NamespaceTypeReference)
	VisitNestedTypeReference(*NestedTypeReference)
	VisitGenericTypeParameter(*GenericTypeParameter)
	VisitGenericMethodParameter(*GenericMethodParameter)
	VisitGenericTypeParameterReference(*GenericTypeParameterReference)
	VisitGenericMethodParameterReference(*GenericMethodParameterReference)
	VisitGenericTypeInstanceReference(*GenericTypeInstanceReference)
	VisitPointerTypeReference(*PointerTypeReference)
	VisitManagedPointerTypeReference(*ManagedPointerTypeReference)
	VisitVectorTypeReference(*VectorTypeReference)
	VisitMatrixTypeReference(*MatrixTypeReference)
	VisitFunctionPointerTypeReference(*FunctionPointerTypeReference)
	VisitModifiedTypeReference(*ModifiedTypeReference)
	VisitTypeSpecification(*TypeSpecification)
	VisitNamespaceAliasForType(*NamespaceAliasForType)
	VisitNestedAliasForType(*NestedAliasForType)

	// Members.
	VisitFieldDefinition(*FieldDefinition)
	VisitMethodDefinition(*MethodDefinition)
	VisitParameterDefinition(*ParameterDefinition)
	VisitPropertyDefinition(*PropertyDefinition)
	VisitEventDefinition(*EventDefinition)
	VisitFieldReference(*FieldReference)
	VisitMethodReference(*MethodReference)
	VisitGenericMethodInstanceReference(*GenericMethodInstanceReference)

	// Other rows.
	VisitCustomAttribute(*CustomAttribute)
	VisitManifestResource(*ManifestResource)
	VisitStandAloneSignature(*StandAloneSignature)
}

// BaseVisitor ignores every call.
type BaseVisitor struct{}

func (BaseVisitor) VisitAssembly(*Assembly) {}
func (BaseVisitor) VisitModule(*Module) {}
func (BaseVisitor) VisitAssemblyReference(*AssemblyReference) {}
func (BaseVisitor) VisitModuleReference(*ModuleReference) {}
func (BaseVisitor) VisitFileReference(*FileReference) {}
func (BaseVisitor) VisitRootNamespace(*RootNamespace) {}
func (BaseVisitor) VisitNestedNamespace(*NestedNamespace) {}
func (BaseVisitor) VisitRootNamespaceReference(*RootNamespaceReference) {}
func (BaseVisitor) VisitNestedNamespaceReference(*NestedNamespaceReference) {}
func (BaseVisitor) VisitTypeDefinition(*TypeDefinition) {}
func (BaseVisitor) VisitNamespaceTypeReference(*NamespaceTypeReference) {}
func (BaseVisitor) VisitNestedTypeReference(*NestedTypeReference) {}
func (BaseVisitor) VisitGenericTypeParameter(*GenericTypeParameter) {}
func (BaseVisitor) VisitGenericMethodParameter(*GenericMethodParameter) {}
func (BaseVisitor) VisitGenericTypeParameterReference(*GenericTypeParameterReference) {}
func (BaseVisitor) VisitGenericMethodParameterReference(*GenericMethodParameterReference) {}
func (BaseVisitor) VisitGenericTypeInstanceReference(*GenericTypeInstanceReference) {}
func (BaseVisitor) VisitPointerTypeReference(*PointerTypeReference) {}
func (BaseVisitor) VisitManagedPointerTypeReference(*ManagedPointerTypeReference) {}
func (BaseVisitor) VisitVectorTypeReference(*VectorTypeReference) {}
func (BaseVisitor) VisitMatrixTypeReference(*MatrixTypeReference) {}
func (BaseVisitor) VisitFunctionPointerTypeReference(*FunctionPointerTypeReference) {}
func (BaseVisitor) VisitModifiedTypeReference(*ModifiedTypeReference) {}
func (BaseVisitor) VisitTypeSpecification(*TypeSpecification) {}
func (BaseVisitor) VisitNamespaceAliasForType(*NamespaceAliasForType) {}
func (BaseVisitor) VisitNestedAliasForType(*NestedAliasForType) {}
func (BaseVisitor) VisitFieldDefinition(*FieldDefinition) {}
func (BaseVisitor) VisitMethodDefinition(*MethodDefinition) {}
func (BaseVisitor) VisitParameterDefinition(*ParameterDefinition) {}
func (BaseVisitor) VisitPropertyDefinition(*PropertyDefinition) {}
func (BaseVisitor) VisitEventDefinition(*EventDefinition) {}
func (BaseVisitor) VisitFieldReference(*FieldReference) {}
func (BaseVisitor) VisitMethodReference(*MethodReference) {}
func (BaseVisitor) VisitGenericMethodInstanceReference(*GenericMethodInstanceReference) {}
func (BaseVisitor) VisitCustomAttribute(*CustomAttribute) {}
func (BaseVisitor) VisitManifestResource(*ManifestResource) {}
func (BaseVisitor) VisitStandAloneSignature(*StandAloneSignature) {}

// Walk visits o and then, depth first, everything o defines: the modules of
// an assembly, the namespaces and types of a module, the members and
// generic parameters of a type, the parameters of a method. References are
// visited but not followed.
func Walk(o Object, v Visitor) {
	if o == nil {
		return
	}
	o.Accept(v)
	switch n := o.(type) {
	case *Assembly:
		for _, m := range n.Modules() {
			Walk(m, v)
		}
	case *Module:
		Walk(n.NamespaceRoot(), v)
	case *RootNamespace:
		for _, m := range n.Members() {
			Walk(m, v)
		}
	case *NestedNamespace:
		for _, m := range n.Members() {
			Walk(m, v)
		}
	case *TypeDefinition:
		for _, p := range n.GenericParameters() {
			Walk(p, v)
		}
		for _, m := range n.Members() {
			Walk(m, v)
		}
	case *MethodDefinition:
		for _, p := range n.GenericParameters() {
			Walk(p, v)
		}
		if r := n.ReturnValue(); r != nil {
			Walk(r, v)
		}
		for _, p := range n.Parameters() {
			Walk(p, v)
		}
	case AliasForType:
		for _, m := range n.Members() {
			Walk(m, v)
		}
	}
}
