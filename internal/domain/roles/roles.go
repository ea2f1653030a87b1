// Пакет roles — классификация советника по структуре и флагам супервизора.
// Все функции чистые: никакого I/O, результат зависит только от аргументов.
// Каждая структура относится ровно к одному семейству; неизвестная
// структура попадает в FamilyUnknown и никогда не совпадает с реальным семейством.
package roles

// Structure — тег организационной структуры советника (значение claim userStructure).
type Structure string

// Известные структуры.
const (
	StructureMILO                     Structure = "MILO"
	StructurePoleEmploi               Structure = "POLE_EMPLOI"
	StructurePoleEmploiBRSA           Structure = "POLE_EMPLOI_BRSA"
	StructurePoleEmploiAIJ            Structure = "POLE_EMPLOI_AIJ"
	StructureConseilDepartemental     Structure = "CONSEIL_DEPT"
	StructureAvenirPro                Structure = "AVENIR_PRO"
	StructureFTAccompagnementIntensif Structure = "FT_ACCOMPAGNEMENT_INTENSIF"
	StructureFTAccompagnementGlobal   Structure = "FT_ACCOMPAGNEMENT_GLOBAL"
	StructureFTEquipEmploiRecrut      Structure = "FT_EQUIP_EMPLOI_RECRUT"
)

// Роли из claim userRoles.
const (
	RoleSuperviseur            = "SUPERVISEUR"
	RoleSuperviseurResponsable = "SUPERVISEUR_RESPONSABLE"
)

// UserTypeConseiller — значение claim userType для советника.
const UserTypeConseiller = "CONSEILLER"

// Family — семейство структур, определяющее набор доступных сценариев.
type Family int

const (
	// FamilyUnknown — структура не распознана.
	FamilyUnknown Family = iota
	// FamilyMissionLocale — Mission Locale (CEJ через i-milo).
	FamilyMissionLocale
	// FamilyFranceTravailCEJ — France Travail, контракт CEJ.
	FamilyFranceTravailCEJ
	// FamilyPassEmploi — остальные программы France Travail и партнёров.
	FamilyPassEmploi
)

// String возвращает стабильное имя семейства (для логов и метрик).
func (f Family) String() string {
	switch f {
	case FamilyMissionLocale:
		return "mission_locale"
	case FamilyFranceTravailCEJ:
		return "france_travail_cej"
	case FamilyPassEmploi:
		return "pass_emploi"
	default:
		return "unknown"
	}
}

// Principal — атрибуты аутентифицированного пользователя, используемые предикатами.
type Principal struct {
	ID                        string
	DisplayName               string
	Structure                 Structure
	EstConseiller             bool
	EstSuperviseur            bool
	EstSuperviseurResponsable bool
}

// DefaultChatExcluded — структуры без чата, если конфигурация не задаёт иное.
var DefaultChatExcluded = []Structure{StructureConseilDepartemental}

// chatExcluded — структуры, для которых чат отключён.
var chatExcluded = excludedSet(DefaultChatExcluded)

// SetChatExcluded заменяет набор структур без чата.
// Вызывается при старте, до обработки запросов.
func SetChatExcluded(structures []Structure) {
	chatExcluded = excludedSet(structures)
}

func excludedSet(structures []Structure) map[Structure]bool {
	set := make(map[Structure]bool, len(structures))
	for _, s := range structures {
		set[s] = true
	}
	return set
}

// FamilyOf возвращает семейство структуры.
func FamilyOf(s Structure) Family {
	switch s {
	case StructureMILO:
		return FamilyMissionLocale
	case StructurePoleEmploi:
		return FamilyFranceTravailCEJ
	case StructurePoleEmploiBRSA,
		StructurePoleEmploiAIJ,
		StructureConseilDepartemental,
		StructureAvenirPro,
		StructureFTAccompagnementIntensif,
		StructureFTAccompagnementGlobal,
		StructureFTEquipEmploiRecrut:
		return FamilyPassEmploi
	default:
		return FamilyUnknown
	}
}

// IsKnown проверяет, является ли структура одной из известных.
func (s Structure) IsKnown() bool {
	return FamilyOf(s) != FamilyUnknown
}

// IsOfFamily проверяет принадлежность principal к семейству.
func IsOfFamily(p Principal, f Family) bool {
	return FamilyOf(p.Structure) == f
}

// IsMissionLocale — сокращение для IsOfFamily(p, FamilyMissionLocale).
func IsMissionLocale(p Principal) bool {
	return IsOfFamily(p, FamilyMissionLocale)
}

// IsFranceTravailCEJ — сокращение для IsOfFamily(p, FamilyFranceTravailCEJ).
func IsFranceTravailCEJ(p Principal) bool {
	return IsOfFamily(p, FamilyFranceTravailCEJ)
}

// IsPassEmploi — сокращение для IsOfFamily(p, FamilyPassEmploi).
func IsPassEmploi(p Principal) bool {
	return IsOfFamily(p, FamilyPassEmploi)
}

// UsesChatFeature возвращает true, если структура не исключена из чата.
// Неизвестная структура чат не теряет: исключение только явное.
func UsesChatFeature(p Principal) bool {
	return !chatExcluded[p.Structure]
}

// IsSupervisor — флаг супервизора.
func IsSupervisor(p Principal) bool {
	return p.EstSuperviseur
}

// IsResponsibleSupervisor — флаг супервизора супервизоров.
// Не выводится из IsSupervisor.
func IsResponsibleSupervisor(p Principal) bool {
	return p.EstSuperviseurResponsable
}

// FlagsFromRoles вычисляет флаги супервизора из claim userRoles.
// Неизвестные роли игнорируются.
func FlagsFromRoles(userRoles []string) (superviseur, responsable bool) {
	set := toSet(userRoles)
	return set[RoleSuperviseur], set[RoleSuperviseurResponsable]
}

// toSet конвертирует срез строк в map для быстрого поиска.
func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}
