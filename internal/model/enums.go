package model

type EvolutionStage string

const (
	StageGenesis     EvolutionStage = "genesis"
	StageCustomBuilt EvolutionStage = "custom-built"
	StageProduct     EvolutionStage = "product/rental"
	StageCommodity   EvolutionStage = "commodity/utility"
)

type StrategicClassification string

const (
	ClassificationCore       StrategicClassification = "core"
	ClassificationSupporting StrategicClassification = "supporting"
	ClassificationGeneric    StrategicClassification = "generic"
)

type Ownership string

const (
	OwnershipOurs     Ownership = "ours"
	OwnershipInternal Ownership = "internal"
	OwnershipExternal Ownership = "external"
)

type BoundaryIntegrity string

const (
	BoundaryStrong   BoundaryIntegrity = "strong"
	BoundaryModerate BoundaryIntegrity = "moderate"
	BoundaryWeak     BoundaryIntegrity = "weak"
)

type IssueSeverity string

const (
	SeverityInfo     IssueSeverity = "info"
	SeverityWarning  IssueSeverity = "warning"
	SeverityCritical IssueSeverity = "critical"
)

type TopologyType string

const (
	TopologyStreamAligned        TopologyType = "stream-aligned"
	TopologyPlatform             TopologyType = "platform"
	TopologyEnabling             TopologyType = "enabling"
	TopologyComplicatedSubsystem TopologyType = "complicated-subsystem"
	TopologyUnknown              TopologyType = "unknown"
)

// RelationshipPattern is one of the DDD context-mapping integration patterns.
type RelationshipPattern string

const (
	PatternCustomerSupplier    RelationshipPattern = "customer-supplier"
	PatternConformist          RelationshipPattern = "conformist"
	PatternAntiCorruptionLayer RelationshipPattern = "anti-corruption-layer"
	PatternOpenHostService     RelationshipPattern = "open-host-service"
	PatternPublishedLanguage   RelationshipPattern = "published-language"
	PatternSharedKernel        RelationshipPattern = "shared-kernel"
	PatternPartnership         RelationshipPattern = "partnership"
	PatternSeparateWays        RelationshipPattern = "separate-ways"
)

// Symmetric reports whether consumers treat the relationship as mutual even
// though it is stored with a direction.
func (p RelationshipPattern) Symmetric() bool {
	return p == PatternSharedKernel || p == PatternPartnership
}
