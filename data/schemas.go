package data

import (
	"github.com/fulldump/dbcextract/format"
)

// ExpandedHotfixRecords lists the schemas whose hotfix payloads carry the id
// block and key block fields inline, around the regular record fields.
var ExpandedHotfixRecords = map[string]bool{
	"SpellEffect":       true,
	"SpellXSpellVisual": true,
	"ItemEffect":        true,
}

func IsExpandedHotfix(schema string) bool {
	return ExpandedHotfixRecords[schema]
}

func field(name string, kind format.Kind, width int) format.Field {
	return format.Field{Name: name, Kind: kind, Width: width, Count: 1}
}

func str(name string) format.Field { return field(name, format.KindString, 4) }
func f32(name string) format.Field { return field(name, format.KindFloat, 4) }
func i32(name string) format.Field { return field(name, format.KindInt, 4) }
func u32(name string) format.Field { return field(name, format.KindUint, 4) }
func u16(name string) format.Field { return field(name, format.KindUint, 2) }
func i16(name string) format.Field { return field(name, format.KindInt, 2) }
func u8(name string) format.Field  { return field(name, format.KindUint, 1) }
func i8(name string) format.Field  { return field(name, format.KindInt, 1) }

func array(f format.Field, n int) format.Field {
	f.Count = n
	return f
}

var builtinSchemas = []*Schema{
	{
		Name: "Spell",
		Fields: format.Layout{
			str("name_subtext"),
			str("description"),
			str("aura_description"),
		},
	},
	{
		Name: "SpellMisc",
		Fields: format.Layout{
			u16("casting_time_index"),
			u16("duration_index"),
			u16("range_index"),
			u8("school_mask"),
			u32("icon_file_data_id"),
			f32("speed"),
			u32("active_icon_file_data_id"),
			f32("launch_delay"),
			u8("difficulty_id"),
			array(i32("attributes"), 14),
			u32("spell_id"),
		},
	},
	{
		Name: "SpellEffect",
		Fields: format.Layout{
			u32("effect"),
			i32("base_value"),
			u32("effect_index"),
			u32("effect_aura"),
			u32("difficulty_id"),
			f32("effect_amplitude"),
			u32("effect_aura_period"),
			f32("bonus_coefficient"),
			f32("chain_amplitude"),
			u32("chain_targets"),
			i32("die_sides"),
			u32("item_type"),
			u32("mechanic"),
			f32("points_per_resource"),
			f32("real_points_per_level"),
			u32("trigger_spell"),
			f32("pos_facing"),
			u32("attributes"),
			f32("bonus_coefficient_from_ap"),
			f32("pvp_multiplier"),
			array(i32("misc_value"), 2),
			array(u32("radius_index"), 2),
			array(i32("class_mask"), 4),
			array(u16("implicit_target"), 2),
		},
	},
	{
		Name: "SpellXSpellVisual",
		Fields: format.Layout{
			u8("difficulty_id"),
			u32("spell_visual_id"),
			f32("probability"),
			u8("flags"),
			u8("priority"),
			i32("spell_icon_file_id"),
			i32("active_icon_file_id"),
			u16("viewer_unit_condition_id"),
			u32("viewer_player_condition_id"),
			u16("caster_unit_condition_id"),
			u32("caster_player_condition_id"),
		},
	},
	{
		Name: "CreatureModelData",
		Fields: format.Layout{
			array(f32("geo_box"), 6),
			u32("flags"),
			u32("file_data_id"),
			u32("blood_id"),
			u32("footprint_texture_id"),
			f32("footprint_texture_length"),
			f32("footprint_texture_width"),
			f32("footprint_particle_scale"),
			u32("foley_material_id"),
			u32("footstep_camera_effect_id"),
			u32("death_thud_camera_effect_id"),
			u32("sound_id"),
			u32("size_class"),
			f32("collision_width"),
			f32("collision_height"),
			f32("world_effect_scale"),
			u32("creature_geoset_data_id"),
			f32("hover_height"),
			f32("attached_effect_scale"),
			f32("model_scale"),
			f32("missile_collision_radius"),
			f32("missile_collision_push"),
			f32("missile_collision_raise"),
			f32("mount_height"),
			f32("override_loot_effect_scale"),
			f32("override_name_scale"),
			f32("override_selection_radius"),
			f32("tamed_pet_base_scale"),
		},
	},
	{
		Name: "Item",
		Fields: format.Layout{
			u8("class_id"),
			u8("subclass_id"),
			u8("material"),
			i8("inventory_type"),
			u8("sheathe_type"),
			i8("sound_override_subclass_id"),
			u32("icon_file_data_id"),
			u8("item_group_sounds_id"),
		},
	},
	{
		Name: "ItemEffect",
		Fields: format.Layout{
			u8("legacy_slot_index"),
			i8("trigger_type"),
			i16("charges"),
			i32("cooldown_msec"),
			i32("category_cooldown_msec"),
			u16("spell_category_id"),
			i32("spell_id"),
			u16("chr_specialization_id"),
		},
	},
}
